package cmd

import "github.com/spf13/cobra"

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect per-organization rate limits",
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
