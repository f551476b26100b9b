package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/petkit-ble/internal/ble"
	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
	"github.com/chaz8081/petkit-ble/internal/config"
	"github.com/chaz8081/petkit-ble/internal/fountain"
	"github.com/chaz8081/petkit-ble/internal/logger"
	"github.com/chaz8081/petkit-ble/internal/mqtt"
)

var (
	configPath  string
	address     string
	scanTimeout time.Duration
)

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/petkit-ble/config.yaml)")
	runCmd.Flags().StringVar(&address, "address", "", "fountain address, overrides device.address")

	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Second, "scan duration")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a fountain and keep it supervised",
	Long: `Scan for the configured fountain, connect, run the bring-up handshake
and keep the link alive until interrupted. With mqtt.enabled the device
state is published and command topics are accepted.`,
	Example: `  # Use ~/.config/petkit-ble/config.yaml
  petkit-ble run

  # Override the address from the config file
  petkit-ble run --address A1:B2:C3:D4:E5:F6`,
	RunE: runRun,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List Petkit fountains in range",
	RunE:  runScan,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if address != "" {
		cfg.Device.Address = address
	}
	if cfg.Device.Address == "" {
		return errors.New("no fountain address: set device.address or pass --address (see 'petkit-ble scan')")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewTinyGoAdapter()

	log.Info("looking for fountain", "address", cfg.Device.Address, "timeout", cfg.Device.ScanTimeout)
	adv, err := ble.FindDevice(ctx, adapter, cfg.Device.Address, cfg.Device.ScanTimeout)
	if err != nil {
		return err
	}

	opts, err := supervisorOptions(cfg)
	if err != nil {
		return err
	}
	sup, err := ble.NewSupervisor(adapter, adv.MAC, opts, log)
	if err != nil {
		return err
	}

	dev := fountain.NewDevice(sup, adv.MAC, initOptions(cfg), log)
	if err := dev.Identify(adv); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dev.Run(ctx) })
	if cfg.MQTT.Enabled {
		bridge := mqtt.Dial(cfg.MQTT, dev, sup, log)
		g.Go(func() error { return bridge.Run(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewTinyGoAdapter()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for Petkit fountains (timeout: %s)...\n\n", scanTimeout)

	devices, err := ble.ScanForDevices(ctx, adapter, scanTimeout, func(d ble.Device) bool {
		return protocol.IsFountainName(d.Name)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan failed: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "No fountains found.")
		return nil
	}

	printDevices(out, devices)
	return nil
}

func printDevices(out io.Writer, devices []ble.Device) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tMODEL\tRSSI")
	for _, d := range devices {
		model := "unknown"
		if v, err := protocol.VariantFromServiceData(d.ServiceData); err == nil {
			model = v.ReadableName()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", d.MAC, d.Name, model, d.RSSI)
	}
	w.Flush()
}

// loadConfig loads the config from path, or from the default path. When no
// file exists there, the defaults are written out for the user to edit.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	written, err := config.WriteDefault()
	if err != nil {
		slog.Warn("could not write default config", "error", err)
	} else if written != "" {
		slog.Info("wrote default config", "path", written)
	}
	return config.Default(), nil
}

func supervisorOptions(cfg *config.Config) (ble.SupervisorOptions, error) {
	policy, err := ble.NewBackoffPolicy(cfg.Reconnect.Policy, cfg.Reconnect.BaseDelay, cfg.Reconnect.MaxDelay)
	if err != nil {
		return ble.SupervisorOptions{}, err
	}
	return ble.SupervisorOptions{
		MaxAttempts:       cfg.Reconnect.MaxAttempts,
		Backoff:           policy,
		FailedCooldown:    cfg.Reconnect.FailedCooldown,
		ConnectTimeout:    cfg.BLE.ConnectTimeout,
		IdlePoll:          cfg.BLE.IdlePoll,
		WriteInterval:     cfg.BLE.WriteInterval,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		ProbeRead:         cfg.Heartbeat.ProbeRead,
		QueueSize:         cfg.BLE.QueueSize,
		NotifyBuffer:      cfg.BLE.NotifyBuffer,
	}, nil
}

func initOptions(cfg *config.Config) fountain.InitOptions {
	return fountain.InitOptions{
		DetailsDelay: cfg.Init.DetailsDelay,
		StepDelay:    cfg.Init.StepDelay,
		ReinitDelay:  cfg.Init.ReinitDelay,
		Timeout:      cfg.Init.Timeout,
		MaxReinit:    cfg.Init.MaxReinit,
	}
}
