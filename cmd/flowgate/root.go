package main

import (
	"fmt"
	"os"

	"github.com/artpar/flowgate/bootstrap"
	"github.com/artpar/flowgate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowgate",
	Short: "Catalog-driven flow dispatcher for HTTP, WebSocket, MQTT and cron",
	Long: `flowgate dispatches protocol messages to flows declared in a catalog.

A catalog declares data types, flow types and flows. Each incoming message
is turned into a dispatch pattern (tenant.namespace.PROTOCOL.host.EVENT),
resolved to one flow, validated against the flow type and executed.

Quick start:
  flowgate validate               # Check config and catalog
  flowgate serve                  # Start serving

Catalog management:
  flowgate catalog import FILE    # Store a catalog in sqlite or redis
  flowgate catalog list           # List flows
  flowgate catalog match PATTERN  # Show which flow a message reaches`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "flowgate.yaml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// openSource opens the configured catalog source for a one-shot command.
func openSource(cfg *config.Config) (*bootstrap.Source, error) {
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	src, err := bootstrap.OpenSource(cfg, false, logger)
	if err != nil {
		return nil, fmt.Errorf("open catalog source: %w", err)
	}
	return src, nil
}
