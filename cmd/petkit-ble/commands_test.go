package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/petkit-ble/internal/ble"
	"github.com/chaz8081/petkit-ble/internal/config"
)

func TestSupervisorOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Reconnect.MaxAttempts = 4
	cfg.Heartbeat.Interval = 0
	cfg.Heartbeat.ProbeRead = true

	opts, err := supervisorOptions(cfg)
	if err != nil {
		t.Fatalf("supervisorOptions() error = %v", err)
	}
	if opts.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", opts.MaxAttempts)
	}
	if opts.HeartbeatInterval != 0 || !opts.ProbeRead {
		t.Errorf("heartbeat = %v/%v, want 0/true", opts.HeartbeatInterval, opts.ProbeRead)
	}
	if opts.WriteInterval != 100*time.Millisecond || opts.QueueSize != 10 {
		t.Errorf("pacing = %v/%d, want 100ms/10", opts.WriteInterval, opts.QueueSize)
	}
	eb, ok := opts.Backoff.(ble.ExponentialBackoff)
	if !ok || eb.Base != time.Second || eb.Max != time.Minute {
		t.Errorf("Backoff = %#v, want exponential 1s..1m", opts.Backoff)
	}
}

func TestSupervisorOptionsTiered(t *testing.T) {
	cfg := config.Default()
	cfg.Reconnect.Policy = "tiered"

	opts, err := supervisorOptions(cfg)
	if err != nil {
		t.Fatalf("supervisorOptions() error = %v", err)
	}
	if _, ok := opts.Backoff.(ble.TieredBackoff); !ok {
		t.Errorf("Backoff = %T, want TieredBackoff", opts.Backoff)
	}
}

func TestSupervisorOptionsUnknownPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Reconnect.Policy = "linear"
	if _, err := supervisorOptions(cfg); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestInitOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Init.MaxReinit = 7

	got := initOptions(cfg)
	if got.DetailsDelay != 1500*time.Millisecond || got.StepDelay != 750*time.Millisecond {
		t.Errorf("delays = %v/%v", got.DetailsDelay, got.StepDelay)
	}
	if got.MaxReinit != 7 || got.Timeout != 30*time.Second {
		t.Errorf("limits = %d/%v", got.MaxReinit, got.Timeout)
	}
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, []ble.Device{
		{MAC: "A1:B2:C3:D4:E5:F6", Name: "Petkit_CTW2", RSSI: -60},
	})

	out := buf.String()
	if !strings.HasPrefix(out, "ADDRESS") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "A1:B2:C3:D4:E5:F6") || !strings.Contains(out, "unknown") || !strings.Contains(out, "-60") {
		t.Errorf("unexpected row: %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(buf.String(), "petkit-ble ") {
		t.Errorf("version output = %q", buf.String())
	}
}
