package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/config"
)

var (
	version string
	cfg     *config.Config
	logger  *slog.Logger
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "billtracker",
	Short: "Mirror congressional bills and derive their legislative status",
	Long: `billtracker ingests bills from the congress.gov API into PostgreSQL,
classifies each bill's progress from its action history, and serves the
result over a small read-only HTTP API.

Configuration is read from the environment (DATABASE_URL, CONGRESS_API_KEY,
REDIS_URL, LOG_LEVEL, ...).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.NewConfig()

		var err error
		logger, err = cfg.NewLogger(os.Stderr)
		if err != nil {
			return fmt.Errorf("invalid logging configuration: %w", err)
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
