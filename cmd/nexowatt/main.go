// NexoWatt VIS - live energy dashboard backend.
//
// The binary mirrors the configured data points from the MQTT state bridge
// into memory, fans every change out to browser channels (SSE and
// WebSocket), and forwards installer writes back to the bridge.
//
// Usage:
//
//	nexowatt serve -c configs/config.yaml
//	nexowatt validate -c configs/config.yaml
//	nexowatt hash-secret
//	nexowatt version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "NEXOWATT_CONFIG"
)

var rootCmd = &cobra.Command{
	Use:   "nexowatt",
	Short: "NexoWatt VIS dashboard backend",
	Long: `NexoWatt VIS serves a live energy dashboard.

It mirrors the configured points from the MQTT state bridge, pushes every
change to connected browsers over Server-Sent Events or WebSocket, and
forwards installer settings back to the bridge.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "",
		"path to config file (default $"+configEnv+" or "+defaultConfigPath+")")
	rootCmd.AddCommand(versionCmd)
}

// configPath resolves the config file: flag, then NEXOWATT_CONFIG, then the default.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "nexowatt %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}
