package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pevans/wfleet/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "wfleet",
	Short: "Exhaustive ship registry scraper",
	Long: `wfleet enumerates a public ship registry by issuing every two-character
query of a fixed alphabet, deduplicates the results and writes them to a
single output file inside a timestamped cache directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultConfig := config.DefaultPath
	if env := os.Getenv("WFLEET_CONFIG"); env != "" {
		defaultConfig = env
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokensCmd)
}

// ExecuteContext runs the root command and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(config.Config{LogLevel: logLevel}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the stderr logger for the configured level.
func newLogger(cfg *config.Config) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
	})
}
