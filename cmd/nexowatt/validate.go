package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/config"
	"github.com/nerrad567/nexowatt-vis/internal/points"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config and points files",
	Long: `Load the configuration and the points table without connecting to
anything. Fatal errors exit with status 1; warnings and point mapping
issues are printed but do not fail the check.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	table, err := points.LoadFile(cfg.Points.File)
	if err != nil {
		return fmt.Errorf("invalid points table: %w", err)
	}
	resolver, issues := points.NewResolver(table)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid: %s\n", path)
	fmt.Fprintf(out, "  Points:  %d mapped from %s\n", resolver.Len(), cfg.Points.File)
	fmt.Fprintf(out, "  Scopes:  %d\n", len(resolver.Scopes()))
	fmt.Fprintf(out, "  Broker:  %s:%d\n", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	fmt.Fprintf(out, "  Listen:  %s:%d\n", cfg.API.Host, cfg.API.Port)

	for _, w := range cfg.Warnings() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for _, issue := range issues {
		fmt.Fprintf(out, "points: %s\n", issue)
	}
	return nil
}
