package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LavishGent/kairos/internal/config"
)

var (
	// Global flags.
	configPath string
	envFile    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "kairos",
	Short: "Tiered caching and resilience for dashboard data feeds",
	Long: `Kairos keeps a public dashboard of weather, alert and natural-disaster
feeds responsive while the upstream APIs are slow or failing.

Configuration is read from a JSON file and KAIROS_* environment variables.
A .env file is loaded first when present.

Examples:
  # Print the effective configuration
  kairos config --config kairos.json

  # Run a flaky synthetic upstream through the caches
  kairos simulate --requests 500 --failure-rate 0.3

  # Expose /metrics and /healthz
  kairos serve --addr :9090`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return err
		}
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithEnv(configPath)
}
