package main

import (
	"fmt"
	"os/exec"

	"github.com/artpar/fetchvault/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the FetchVault configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present and in range
  - The fetch tool binary is on PATH

Examples:
  fetchvault validate
  fetchvault validate --config /etc/fetchvault/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Println("Configuration OK")
	fmt.Printf("  server:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  database: %s\n", cfg.Database.Driver)
	fmt.Printf("  billing:  %s\n", cfg.Billing.Mode)

	if path, err := exec.LookPath(cfg.Fetch.Binary); err != nil {
		fmt.Printf("  warning:  fetch binary %q not found on PATH\n", cfg.Fetch.Binary)
	} else {
		fmt.Printf("  fetch:    %s\n", path)
	}
	return nil
}
