package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fetchvault",
	Short: "Batch media download orchestration service",
	Long: `FetchVault accepts batches of media URLs, downloads them with an
external fetch tool, packs the results into size-bounded ZIP archives,
and notifies tenants with signed webhooks when batches finish.

Quick start:
  fetchvault serve      # Start the API server
  fetchvault tenant add # Create a tenant and API key

Management:
  fetchvault validate   # Validate configuration
  fetchvault version    # Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "fetchvault.yaml", "config file path")
}
