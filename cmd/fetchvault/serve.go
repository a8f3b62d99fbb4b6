package main

import (
	"fmt"
	"os"

	"github.com/artpar/fetchvault/bootstrap"
	"github.com/artpar/fetchvault/config"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the FetchVault server.

The server will:
  - Load configuration from fetchvault.yaml (or --config)
  - Or load configuration from FETCHVAULT_* environment variables
  - Open the configured stores
  - Accept batch submissions and process them

Environment variables (for container deployments):
  FETCHVAULT_SERVER_PORT     - Server port (default: 8080)
  FETCHVAULT_DATABASE_DRIVER - memory or sqlite (default: memory)
  FETCHVAULT_DATABASE_DSN    - SQLite path (default: fetchvault.db)
  FETCHVAULT_FETCH_BINARY    - Download tool binary (default: yt-dlp)
  FETCHVAULT_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  fetchvault serve
  fetchvault serve --config /etc/fetchvault/config.yaml
  fetchvault serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}
		app, err = bootstrap.New(cfg)
	}
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	return app.Run()
}
