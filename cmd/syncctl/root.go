package main

import (
	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "CLI for the integration sync daemon",
	Long: `syncctl talks to a running sync daemon to inspect scheduler state,
trigger and test integration syncs, page through sync logs, and read
control health scores.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Sync daemon URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(healthCmd)
}
