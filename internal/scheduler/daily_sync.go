package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jjenkins/billtracker/internal/model"
)

// DailyRunner runs one incremental sync
type DailyRunner interface {
	RunDaily(ctx context.Context, congress int, billTypes []string) (*model.SyncSnapshot, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a five-field cron expression
func ValidateSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// DailySyncScheduler triggers the incremental sync on a cron schedule.
// At most one run is in flight; a tick that fires during a run is skipped.
type DailySyncScheduler struct {
	runner    DailyRunner
	schedule  string
	congress  int
	billTypes []string
	logger    *slog.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu        sync.RWMutex
	isRunning bool
	runCtx    context.Context
	cancel    context.CancelFunc

	syncMu    sync.Mutex
	isSyncing bool

	// manual tracks RunNow goroutines; cron tracks its own jobs
	manual sync.WaitGroup
}

// NewDailySyncScheduler creates a scheduler. A zero congress lets each run
// resolve the current congress.
func NewDailySyncScheduler(runner DailyRunner, schedule string, congress int, billTypes []string, logger *slog.Logger) *DailySyncScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DailySyncScheduler{
		runner:    runner,
		schedule:  schedule,
		congress:  congress,
		billTypes: billTypes,
		logger:    logger.With("component", "scheduler"),
		cron:      cron.New(cron.WithParser(parser)),
	}
}

// Start registers the job and starts the cron loop. The scheduler stops
// when ctx is canceled.
func (s *DailySyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runSync(s.runCtx)
	})
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule daily sync: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true

	next := s.cron.Entry(entryID).Next
	s.logger.Info("daily sync scheduler started", "schedule", s.schedule, "next_run", next)

	runCtx := s.runCtx
	go func() {
		<-runCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop cancels any in-flight run, scheduled or started by RunNow, and waits
// for it to return
func (s *DailySyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.manual.Wait()

	s.cron.Remove(s.entryID)
	s.isRunning = false
	s.logger.Info("daily sync scheduler stopped")
}

// RunNow triggers an immediate sync in the background. Once the scheduler
// has started, the run is canceled and awaited by Stop.
func (s *DailySyncScheduler) RunNow() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		s.runSync(ctx)
	}()
}

// IsRunning returns whether the scheduler is active
func (s *DailySyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsSyncing returns whether a sync is in flight
func (s *DailySyncScheduler) IsSyncing() bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.isSyncing
}

// NextRunTime returns when the next sync will fire
func (s *DailySyncScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	t := s.cron.Entry(s.entryID).Next
	if t.IsZero() {
		return nil
	}
	return &t
}

// runSync performs one run and reports whether it actually ran
func (s *DailySyncScheduler) runSync(ctx context.Context) bool {
	s.syncMu.Lock()
	if s.isSyncing {
		s.syncMu.Unlock()
		s.logger.Warn("daily sync skipped, previous run still in progress")
		return false
	}
	s.isSyncing = true
	s.syncMu.Unlock()

	defer func() {
		s.syncMu.Lock()
		s.isSyncing = false
		s.syncMu.Unlock()
	}()

	start := time.Now()
	snap, err := s.runner.RunDaily(ctx, s.congress, s.billTypes)
	if err != nil {
		s.logger.Error("daily sync failed", "error", err, "duration", time.Since(start))
		return true
	}

	s.logger.Info("daily sync finished",
		"snapshot", snap.ID,
		"congress", snap.Congress,
		"processed", snap.TotalProcessed,
		"success", snap.TotalSuccess,
		"failed", snap.TotalFailed,
		"skipped", snap.TotalSkipped,
		"duration", time.Since(start))
	return true
}
