package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldops/cli/internal/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "fieldops",
	Short: "FieldOps CLI - Command line access to the FieldOps field-visit API",
	Long: `FieldOps CLI is a command line tool for signing in to the
FieldOps field-visit API and calling it on your behalf.

Use this CLI to manage your session, check what forms your account
may use, and send authorized requests to the API.`,
	SilenceUsage:       true,
	PersistentPostRunE: writeMetrics,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.fieldopsrc)")
	rootCmd.PersistentFlags().StringP("server", "s", "", "FieldOps API server URL")
	rootCmd.PersistentFlags().String("metrics-file", "", "write session metrics to this file on exit")
}

// writeMetrics dumps the session collectors for commands that exit before
// they could be scraped.
func writeMetrics(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("metrics-file")
	if path == "" {
		return nil
	}
	if err := metrics.WriteFile(path, metricsRegistry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
