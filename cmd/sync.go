package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/lock"
	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/service"
	"github.com/jjenkins/billtracker/internal/store"
)

var (
	syncCongress  int
	syncTypes     []string
	syncMode      string
	syncOffset    int
	syncMaxPages  int
	syncBill      string
	syncSince     string
	syncDryRun    bool
	syncNoMetrics bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync bills from the congress.gov API",
	Long: `Sync downloads bills from the congress.gov API, derives each bill's
progress stage from its actions, and stores the result in PostgreSQL.

Every run is recorded as a sync snapshot with its counts and final status.
Requests are spaced to stay under CONGRESS_API_HOURLY_LIMIT, so a full
historical backfill of a congress takes many hours.

Examples:
  # Backfill every bill type of the current congress
  billtracker sync

  # Backfill House bills of the 118th congress, resuming at offset 5000
  billtracker sync --congress 118 --type hr --offset 5000

  # Incremental run: bills updated since the last completed sync
  billtracker sync --mode daily

  # Incremental run from an explicit point in time
  billtracker sync --mode daily --since 2025-03-01T00:00:00Z

  # Re-sync a single bill
  billtracker sync --bill 1234hr119

  # Run the whole pipeline without a database
  billtracker sync --type sjres --max-pages 1 --dry-run`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().IntVarP(&syncCongress, "congress", "c", 0, "Congress number (default: current congress)")
	syncCmd.Flags().StringSliceVarP(&syncTypes, "type", "t", nil, "Bill type to sync, repeatable (default: SYNC_BILL_TYPES)")
	syncCmd.Flags().StringVarP(&syncMode, "mode", "m", string(model.SyncTypeHistorical), "Sync mode: historical or daily")
	syncCmd.Flags().IntVar(&syncOffset, "offset", 0, "Start offset into each bill type's list")
	syncCmd.Flags().IntVar(&syncMaxPages, "max-pages", 0, "Maximum pages per bill type (default: all)")
	syncCmd.Flags().StringVar(&syncBill, "bill", "", "Sync a single bill by id, e.g. 1234hr119")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "Daily mode: only bills updated at or after this RFC3339 time")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Store results in memory instead of PostgreSQL")
	syncCmd.Flags().BoolVar(&syncNoMetrics, "no-metrics", false, "Skip the metrics summary after the run")
}

// pipelineStore is everything the sync command needs from storage
type pipelineStore interface {
	service.BillStore
	service.SnapshotStore
	service.MetricsSource
}

func runSync(cmd *cobra.Command, args []string) error {
	opts, err := syncOptionsFromFlags()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st pipelineStore
	if syncDryRun {
		logger.Info("dry run, results are kept in memory")
		st = store.NewMemory()
	} else {
		logger.Info("connecting to database")
		db, err := store.NewDB(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		st = store.NewPostgres(db)
	}

	locker, closeLocker, err := newLocker()
	if err != nil {
		return err
	}
	defer closeLocker()

	syncer := newSyncer(st, locker)

	if syncBill != "" {
		logger.Info("syncing single bill", "bill", syncBill)
		rec, err := syncer.SyncBill(ctx, syncBill)
		if err != nil {
			return fmt.Errorf("failed to sync bill %s: %w", syncBill, err)
		}
		printBill(cmd, rec)
		return nil
	}

	snap, err := syncer.Run(ctx, opts)
	if snap != nil {
		service.WriteSummary(cmd.OutOrStdout(), snap)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("sync cancelled")
		}
		return err
	}

	if !syncNoMetrics {
		metrics, err := service.NewMetricsService(st).Calculate(ctx, snap.Congress)
		if err != nil {
			logger.Warn("failed to calculate metrics", "error", err)
		} else {
			service.WriteMetrics(cmd.OutOrStdout(), metrics)
		}
	}

	if snap.TotalFailed > 0 {
		return fmt.Errorf("%d bills failed to sync", snap.TotalFailed)
	}
	return nil
}

func syncOptionsFromFlags() (service.SyncOptions, error) {
	opts := service.SyncOptions{
		Congress:    syncCongress,
		BillTypes:   syncTypes,
		StartOffset: syncOffset,
		MaxPages:    syncMaxPages,
	}

	switch model.SyncType(syncMode) {
	case model.SyncTypeHistorical:
		opts.Type = model.SyncTypeHistorical
	case model.SyncTypeDaily:
		opts.Type = model.SyncTypeDaily
		opts.SkipUnchanged = true
	default:
		return opts, fmt.Errorf("invalid --mode %q: must be historical or daily", syncMode)
	}

	if syncSince != "" {
		if opts.Type != model.SyncTypeDaily {
			return opts, errors.New("--since requires --mode daily")
		}
		t, err := time.Parse(time.RFC3339, syncSince)
		if err != nil {
			return opts, fmt.Errorf("invalid --since: %w", err)
		}
		opts.FromDateTime = t
	}
	if syncOffset < 0 || syncMaxPages < 0 {
		return opts, errors.New("--offset and --max-pages must not be negative")
	}

	return opts, nil
}

// newLocker picks the Redis lock when REDIS_URL is set and the in-process one otherwise
func newLocker() (lock.Locker, func(), error) {
	if cfg.Redis.URL == "" {
		return lock.NewLocal(), func() {}, nil
	}
	r, err := lock.NewRedis(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return r, func() { r.Close() }, nil
}

func newSyncer(st pipelineStore, locker lock.Locker) *service.Syncer {
	client := service.NewCongressClient(service.ClientConfig{
		BaseURL:      cfg.Congress.BaseURL,
		APIKey:       cfg.Congress.APIKey,
		HourlyLimit:  cfg.Congress.HourlyLimit,
		RequestDelay: cfg.RequestDelay(),
		MaxRetries:   cfg.Congress.MaxRetries,
		RetryBackoff: cfg.Congress.RetryBackoff,
		Timeout:      cfg.Congress.Timeout,
		Logger:       logger,
	})

	return service.NewSyncer(client, service.NewTransformer(), st, st, locker, service.SyncerConfig{
		PageSize:   cfg.Sync.PageSize,
		BillTypes:  cfg.Sync.BillTypes,
		StaleAfter: cfg.Sync.StaleAfter,
		LockTTL:    cfg.Sync.LockTTL,
		Logger:     logger,
	})
}

func printBill(cmd *cobra.Command, rec *model.BillRecord) {
	w := cmd.OutOrStdout()
	b := rec.Bill
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "=== Bill ===")
	fmt.Fprintf(w, "Bill:            %s %d (%s)\n", b.TypeLabel, b.BillNumber, b.ID)
	fmt.Fprintf(w, "Title:           %s\n", b.CleanTitle)
	fmt.Fprintf(w, "Sponsor:         %s\n", b.SponsorName)
	fmt.Fprintf(w, "Stage:           %s (%d%%)\n", b.ProgressDescription, b.ProgressPercent)
	if b.LatestActionDate.Valid {
		fmt.Fprintf(w, "Latest action:   %s %s\n", b.LatestActionDate.Time.Format("2006-01-02"), b.LatestActionText)
	}
	fmt.Fprintf(w, "Actions:         %d\n", len(rec.Actions))
	fmt.Fprintf(w, "Titles:          %d\n", len(rec.Titles))
	if rec.PolicyArea != "" {
		fmt.Fprintf(w, "Policy area:     %s\n", rec.PolicyArea)
	}
}
