// Package cmd contains the CLI commands for driftwatch.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clearclaim/driftwatch/internal/claims"
	"github.com/clearclaim/driftwatch/internal/storage"
)

var (
	// Used for flags
	cfgPath string
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "driftwatch - Payer Behavior Drift Detection",
	Long: `driftwatch detects behavioral drift in healthcare payer adjudication.

It compares each payer's recent claim outcomes against that payer's own
historical baseline per procedure group, and raises alerts when denial
rates, payment amounts, or processing timelines shift.

Detectors:
  - Denial rate, approval rate, and authorization failure drift
  - Underpayment and payment delay drift
  - Processing time drift
  - Short-window behavioral prediction (early warning)
  - Cross-tenant network patterns per payer

Examples:
  # Run the pipeline once for one tenant
  driftwatch compute --tenant acme-billing

  # Run continuous scheduled sweeps
  driftwatch schedule

  # Validate and import alert rules
  driftwatch rules validate rules.yaml
  driftwatch rules import rules.yaml

  # Inspect runs and record operator feedback
  driftwatch runs list --tenant acme-billing
  driftwatch runs judge --alert <id> --verdict noise`,
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// loadConfig loads the configured or default configuration. The --verbose
// flag upgrades the log level.
func loadConfig() (*Config, error) {
	var cfg *Config
	if cfgPath != "" {
		loaded, err := LoadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = DefaultConfig()
		if envPath := os.Getenv("DRIFTWATCH_DB_PATH"); envPath != "" {
			cfg.Storage.Path = envPath
		}
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// buildLogger builds the zap logger from logging config.
func buildLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.Set(cfg.Level); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// openStorage opens and migrates the state store.
func openStorage(cfg *Config) (*storage.SQLiteStorage, error) {
	store := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}
	return store, nil
}

// openClaims opens the claims warehouse connection.
func openClaims(cfg *Config) (*claims.ClickHouseStore, error) {
	if len(cfg.Claims.Addresses) == 0 {
		return nil, fmt.Errorf("claims.addresses is required; configure the claims warehouse")
	}
	store := claims.NewClickHouseStore(&cfg.Claims)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open claims warehouse: %w", err)
	}
	return store, nil
}

// GetOutput returns the selected output format.
func GetOutput() string {
	return output
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-2] + ".."
}
