package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/handlers"
	"github.com/jjenkins/billtracker/internal/scheduler"
	"github.com/jjenkins/billtracker/internal/service"
	"github.com/jjenkins/billtracker/internal/store"
)

var (
	port          int
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billtracker web server",
	Long: `Start the read-only HTTP API over stored bills and the sync history page.

With --schedule the server also runs the daily incremental sync on
SYNC_SCHEDULE (cron format, default "0 6 * * *").`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to run the server on (default: PORT)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "Run the daily sync on SYNC_SCHEDULE")
}

func runServe(cmd *cobra.Command, args []string) error {
	if port == 0 {
		port = cfg.HTTP.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	st := store.NewPostgres(db)

	if serveSchedule {
		if err := cfg.Validate(); err != nil {
			return err
		}
		locker, closeLocker, err := newLocker()
		if err != nil {
			return err
		}
		defer closeLocker()

		sched := scheduler.NewDailySyncScheduler(newSyncer(st, locker), cfg.Sync.Schedule, 0, cfg.Sync.BillTypes, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "billtracker",
		DisableStartupMessage: true,
	})

	app.Use(fiberlogger.New())

	handlers.RegisterRoutes(app, st, st, service.NewMetricsService(st))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
	}()

	logger.Info("starting server", "port", port)
	if err := app.Listen(":" + strconv.Itoa(port)); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
