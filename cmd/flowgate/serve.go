package main

import (
	"fmt"
	"os"

	"github.com/artpar/flowgate/bootstrap"
	"github.com/artpar/flowgate/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flow dispatcher",
	Long: `Start the flowgate server.

The server will:
  - Load configuration from flowgate.yaml (or --config)
  - Or load configuration from FLOWGATE_* environment variables
  - Load the catalog from a file, SQLite or Redis
  - Serve HTTP flows at /{tenant}/{namespace}/* and WebSocket frames at
    /_flowgate/ws/{tenant}/{namespace}
  - Subscribe to MQTT topics and fire cron flows when enabled

Environment variables (for Docker deployments):
  FLOWGATE_CATALOG_SOURCE   - file, sqlite or redis (default: file)
  FLOWGATE_CATALOG_PATH     - Catalog file for the file source
  FLOWGATE_DATABASE_DSN     - SQLite path (default: flowgate.db)
  FLOWGATE_REDIS_ADDR       - Redis address for the redis source
  FLOWGATE_SERVER_PORT      - Server port (default: 8080)
  FLOWGATE_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  flowgate serve
  flowgate serve --config /etc/flowgate/config.yaml
  flowgate serve --hot-reload

  # Docker (env vars only):
  FLOWGATE_CATALOG_PATH=/etc/flowgate/catalog.yaml flowgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", false, "reload the catalog when it changes (overrides catalog.hot_reload)")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	// No configuration at all
	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Fprintln(cmd.OutOrStdout(), "No configuration found.")
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "Option 1: Create %s with a catalog section\n", cfgFile)
		fmt.Fprintln(cmd.OutOrStdout(), "Option 2: Set FLOWGATE_CATALOG_PATH or FLOWGATE_CATALOG_SOURCE")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !hasConfigFile {
		fmt.Fprintln(cmd.OutOrStdout(), "Running with environment variables (no config file)")
	}

	app, err := bootstrap.New(cfg, bootstrap.Options{
		Version:   version,
		HotReload: hotReload,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
