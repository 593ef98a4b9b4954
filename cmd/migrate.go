package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Migrate applies the embedded SQL migrations that have not yet been
recorded in schema_migrations. It is safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.NewDB(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		applied, err := store.Migrate(ctx, db)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			logger.Info("database is up to date")
			return nil
		}
		for _, v := range applied {
			logger.Info("applied migration", "version", v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
