// Petkit-ble supervises the Bluetooth LE link to a Petkit water fountain.
//
// It keeps the connection alive, runs the device bring-up handshake on every
// new connection, tracks the fountain's state, and optionally bridges that
// state and a small command set to MQTT.
//
// Usage:
//
//	petkit-ble run [--config path] [--address mac]
//	petkit-ble scan [--timeout 10s]
//	petkit-ble version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/petkit-ble/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "petkit-ble",
	Short:         "Petkit water fountain BLE supervisor",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "petkit-ble %s\n", version.Full())
	},
}
