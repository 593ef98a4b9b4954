package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jjenkins/billtracker/internal/lock"
	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/status"
)

const (
	defaultPageSize   = 250
	defaultStaleAfter = 24 * time.Hour
	defaultLockTTL    = 12 * time.Hour
	defaultDailyLook  = 24 * time.Hour

	// StaleReason is recorded on runs that stopped heartbeating
	StaleReason = "sync was interrupted"

	finishTimeout = 30 * time.Second
)

// BillSource is the subset of the Congress API client the syncer needs
type BillSource interface {
	Validate() error
	FetchCurrentCongress(ctx context.Context) (int, error)
	ListBills(ctx context.Context, congress int, billType string, opts ListOptions) (*BillPage, error)
	FetchBill(ctx context.Context, congress int, billType string, number int) (*BillDetail, error)
	FetchActions(ctx context.Context, congress int, billType string, number int) ([]ActionItem, error)
	FetchSummaries(ctx context.Context, congress int, billType string, number int) ([]SummaryItem, error)
	FetchTitles(ctx context.Context, congress int, billType string, number int) ([]TitleItem, error)
	FetchTextVersions(ctx context.Context, congress int, billType string, number int) ([]TextVersionItem, error)
}

// BillStore persists bills and their child collections
type BillStore interface {
	GetBill(ctx context.Context, id string) (*model.Bill, error)
	LatestCongress(ctx context.Context) (int, error)
	UpsertBill(ctx context.Context, b *model.Bill) error
	ReplaceActions(ctx context.Context, billID string, actions []model.Action) error
	ReplaceTitles(ctx context.Context, billID string, titles []model.Title) error
	UpsertSummary(ctx context.Context, s *model.Summary) error
	UpsertPolicyArea(ctx context.Context, billID, name string) error
	UpdateBillSyncStatus(ctx context.Context, billID string, bits model.Endpoint) error
}

// SnapshotStore persists the audit trail of sync runs
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snap *model.SyncSnapshot) error
	UpdateSnapshotProgress(ctx context.Context, snap *model.SyncSnapshot) error
	FinishSnapshot(ctx context.Context, snap *model.SyncSnapshot) error
	FailStaleSnapshots(ctx context.Context, before time.Time, reason string) (int, error)
	LastCompletedScope(ctx context.Context, congress int, billType string) (*model.SyncSnapshot, error)
}

// SyncerConfig tunes a Syncer. Zero values fall back to defaults.
type SyncerConfig struct {
	PageSize   int
	BillTypes  []string // default scope when a run does not name any
	StaleAfter time.Duration
	LockTTL    time.Duration
	Logger     *slog.Logger
}

// SyncOptions scopes a single run
type SyncOptions struct {
	Type      model.SyncType
	Congress  int      // zero resolves the current congress
	BillTypes []string // empty uses the configured scope

	StartOffset int
	MaxPages    int // per bill type; zero pages until exhausted

	// Daily runs only. A zero FromDateTime continues from the last completed run.
	FromDateTime  time.Time
	SkipUnchanged bool
}

// Syncer orchestrates fetching, transforming, deriving and storing bills.
// Bills are processed one at a time so the shared rate limiter is the only
// pacing mechanism.
type Syncer struct {
	source      BillSource
	transformer *Transformer
	bills       BillStore
	snapshots   SnapshotStore
	locker      lock.Locker
	cfg         SyncerConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewSyncer creates a new Syncer
func NewSyncer(source BillSource, transformer *Transformer, bills BillStore, snapshots SnapshotStore, locker lock.Locker, cfg SyncerConfig) *Syncer {
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = defaultPageSize
	}
	if len(cfg.BillTypes) == 0 {
		cfg.BillTypes = model.BillTypeCodes()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if transformer == nil {
		transformer = NewTransformer()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}

	return &Syncer{
		source:      source,
		transformer: transformer,
		bills:       bills,
		snapshots:   snapshots,
		locker:      locker,
		cfg:         cfg,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// RunHistorical backfills every bill of the given types for a congress from offset 0
func (s *Syncer) RunHistorical(ctx context.Context, congress int, billTypes []string) (*model.SyncSnapshot, error) {
	return s.Run(ctx, SyncOptions{
		Type:      model.SyncTypeHistorical,
		Congress:  congress,
		BillTypes: billTypes,
	})
}

// RunDaily syncs bills updated since the last completed run, skipping ones already current
func (s *Syncer) RunDaily(ctx context.Context, congress int, billTypes []string) (*model.SyncSnapshot, error) {
	return s.Run(ctx, SyncOptions{
		Type:          model.SyncTypeDaily,
		Congress:      congress,
		BillTypes:     billTypes,
		SkipUnchanged: true,
	})
}

// Run executes one sync and returns its final snapshot. The snapshot is
// persisted as "running" before any work starts and always patched to
// "completed" or "failed", even when ctx is canceled.
func (s *Syncer) Run(ctx context.Context, opts SyncOptions) (*model.SyncSnapshot, error) {
	if opts.Type == "" {
		opts.Type = model.SyncTypeHistorical
	}

	s.recoverStale(ctx)

	billTypes := opts.BillTypes
	if len(billTypes) == 0 {
		billTypes = s.cfg.BillTypes
	}
	billTypes = normalizeTypes(billTypes)

	snap := &model.SyncSnapshot{
		SyncType:  opts.Type,
		Congress:  opts.Congress,
		BillTypes: billTypes,
		StartedAt: s.now(),
		Status:    model.SyncStatusRunning,
	}
	if err := s.snapshots.CreateSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to create sync snapshot: %w", err)
	}

	s.logger.Info("sync started",
		"snapshot", snap.ID, "type", snap.SyncType, "congress", snap.Congress, "bill_types", billTypes)

	runErr := s.execute(ctx, snap, opts, billTypes)

	snap.CompletedAt.Time = s.now()
	snap.CompletedAt.Valid = true
	if runErr != nil {
		snap.Status = model.SyncStatusFailed
		snap.ErrorDetails = errorDetails(runErr)
		s.logger.Error("sync failed", "snapshot", snap.ID, "error", runErr)
	} else {
		snap.Status = model.SyncStatusCompleted
		s.logger.Info("sync completed", "snapshot", snap.ID,
			"processed", snap.TotalProcessed, "success", snap.TotalSuccess,
			"failed", snap.TotalFailed, "skipped", snap.TotalSkipped)
	}

	// The run context may already be canceled; the final patch must still land.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := s.snapshots.FinishSnapshot(finishCtx, snap); err != nil {
		return snap, errors.Join(runErr, fmt.Errorf("failed to finish sync snapshot %d: %w", snap.ID, err))
	}

	return snap, runErr
}

// recoverStale marks runs abandoned by a dead process as failed
func (s *Syncer) recoverStale(ctx context.Context) {
	n, err := s.snapshots.FailStaleSnapshots(ctx, s.now().Add(-s.cfg.StaleAfter), StaleReason)
	if err != nil {
		s.logger.Warn("failed to recover stale sync snapshots", "error", err)
		return
	}
	if n > 0 {
		s.logger.Warn("marked stale sync snapshots as failed", "count", n)
	}
}

func (s *Syncer) execute(ctx context.Context, snap *model.SyncSnapshot, opts SyncOptions, billTypes []string) error {
	if err := s.source.Validate(); err != nil {
		return &OrchestratorError{Reason: "missing credentials", Err: err}
	}

	for _, bt := range billTypes {
		if _, ok := model.LookupBillType(bt); !ok {
			return &OrchestratorError{Reason: fmt.Sprintf("unknown bill type %q", bt)}
		}
	}

	congress, err := s.resolveCongress(ctx, opts.Congress)
	if err != nil {
		return err
	}
	if congress != snap.Congress {
		snap.Congress = congress
		s.heartbeat(ctx, snap)
	}

	leases, err := s.acquireScopes(ctx, congress, billTypes)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()
		for _, lease := range leases {
			if err := lease.Release(releaseCtx); err != nil {
				s.logger.Warn("failed to release sync lock", "key", lease.Key, "error", err)
			}
		}
	}()

	for _, bt := range billTypes {
		list := ListOptions{}
		if opts.Type == model.SyncTypeDaily {
			list.Sort = "updateDate+desc"
			list.FromDateTime = opts.FromDateTime
			if list.FromDateTime.IsZero() {
				list.FromDateTime = s.dailyWindowStart(ctx, congress, bt)
			}
			s.logger.Info("incremental window", "type", bt, "from", list.FromDateTime)
		}

		if err := s.syncScope(ctx, snap, leases, congress, bt, list, opts); err != nil {
			return err
		}
	}

	return nil
}

func normalizeTypes(billTypes []string) []string {
	out := make([]string, len(billTypes))
	for i, bt := range billTypes {
		out[i] = strings.ToLower(strings.TrimSpace(bt))
	}
	return out
}

// resolveCongress falls back to the API's current congress, then to the
// newest congress already stored
func (s *Syncer) resolveCongress(ctx context.Context, congress int) (int, error) {
	if congress > 0 {
		return congress, nil
	}

	current, err := s.source.FetchCurrentCongress(ctx)
	if err == nil && current > 0 {
		return current, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	s.logger.Warn("could not fetch current congress, using latest stored", "error", err)

	latest, serr := s.bills.LatestCongress(ctx)
	if serr != nil {
		return 0, &OrchestratorError{Reason: "could not determine congress", Err: errors.Join(err, serr)}
	}
	if latest <= 0 {
		return 0, &OrchestratorError{Reason: "could not determine congress", Err: err}
	}
	return latest, nil
}

func (s *Syncer) acquireScopes(ctx context.Context, congress int, billTypes []string) ([]*lock.Lease, error) {
	var leases []*lock.Lease
	for _, bt := range billTypes {
		lease, err := s.locker.Acquire(ctx, lock.ScopeKey(congress, bt), s.cfg.LockTTL)
		if err != nil {
			for _, l := range leases {
				_ = l.Release(context.WithoutCancel(ctx))
			}
			if errors.Is(err, lock.ErrLocked) {
				return nil, &OrchestratorError{Reason: fmt.Sprintf("another sync is running for congress %d type %s", congress, bt), Err: err}
			}
			return nil, &OrchestratorError{Reason: "could not acquire sync lock", Err: err}
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

// renewLeases pushes every scope lock's expiry out by another LockTTL. A lost
// lock aborts the run since another run may already own the scope.
func (s *Syncer) renewLeases(ctx context.Context, leases []*lock.Lease) error {
	for _, lease := range leases {
		err := lease.Extend(ctx, s.cfg.LockTTL)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, lock.ErrLost) {
			return &OrchestratorError{Reason: "sync lock expired: " + lease.Key, Err: err}
		}
		s.logger.Warn("failed to extend sync lock", "key", lease.Key, "error", err)
	}
	return nil
}

// dailyWindowStart is the start of the last completed run that covered this
// (congress, bill type) scope, or a day ago when there is none
func (s *Syncer) dailyWindowStart(ctx context.Context, congress int, billType string) time.Time {
	last, err := s.snapshots.LastCompletedScope(ctx, congress, billType)
	if err != nil {
		s.logger.Warn("failed to load last completed sync", "type", billType, "error", err)
	}
	if last != nil {
		return last.StartedAt
	}
	return s.now().Add(-defaultDailyLook)
}

// syncScope pages through one (congress, bill type) list until a short or empty page
func (s *Syncer) syncScope(ctx context.Context, snap *model.SyncSnapshot, leases []*lock.Lease, congress int, billType string, list ListOptions, opts SyncOptions) error {
	offset := opts.StartOffset
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		list.Offset = offset
		list.Limit = s.cfg.PageSize

		page, err := s.source.ListBills(ctx, congress, billType, list)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &OrchestratorError{Reason: fmt.Sprintf("list %s bills at offset %d", billType, offset), Err: err}
		}

		s.logger.Info("processing page",
			"congress", congress, "type", billType, "offset", offset, "bills", len(page.Bills))

		for idx, item := range page.Bills {
			if err := ctx.Err(); err != nil {
				return err
			}

			skipped, err := s.syncItem(ctx, congress, item, opts.SkipUnchanged)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}

			snap.TotalProcessed++
			switch {
			case err != nil:
				snap.TotalFailed++
				s.logger.Error("failed to sync bill",
					"bill", fmt.Sprintf("%s%s%d", item.Number, strings.ToLower(item.Type), item.Congress),
					"position", offset+idx+1, "error", err)
			case skipped:
				snap.TotalSkipped++
			default:
				snap.TotalSuccess++
			}
		}

		s.heartbeat(ctx, snap)
		if err := s.renewLeases(ctx, leases); err != nil {
			return err
		}
		pages++

		if !page.HasMore || len(page.Bills) == 0 {
			return nil
		}
		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			s.logger.Info("page limit reached", "type", billType, "pages", pages)
			return nil
		}
		offset += s.cfg.PageSize
	}
}

func (s *Syncer) heartbeat(ctx context.Context, snap *model.SyncSnapshot) {
	if err := s.snapshots.UpdateSnapshotProgress(ctx, snap); err != nil {
		s.logger.Warn("failed to update sync progress", "snapshot", snap.ID, "error", err)
	}
}

// syncItem processes one list entry, reporting whether it was skipped as unchanged
func (s *Syncer) syncItem(ctx context.Context, congress int, item BillListItem, skipUnchanged bool) (bool, error) {
	billType := strings.ToLower(item.Type)
	number, err := strconv.Atoi(strings.TrimSpace(item.Number.String()))
	if err != nil {
		return false, &TransformError{Reason: "invalid bill number " + strconv.Quote(item.Number.String())}
	}
	if item.Congress > 0 {
		congress = item.Congress
	}

	if skipUnchanged {
		current, err := s.isCurrent(ctx, model.BillID(congress, billType, number), item)
		if err != nil {
			return false, err
		}
		if current {
			return true, nil
		}
	}

	_, err = s.syncBill(ctx, congress, billType, number)
	return false, err
}

// isCurrent reports whether the stored bill is at least as new as the list entry
// and has its core sub-resources synced
func (s *Syncer) isCurrent(ctx context.Context, id string, item BillListItem) (bool, error) {
	listed := latestDate(item.UpdateDate, item.UpdateDateIncludingText)
	if !listed.Valid {
		return false, nil
	}

	stored, err := s.bills.GetBill(ctx, id)
	if err != nil {
		return false, &StorageError{Op: "read", BillID: id, Err: err}
	}
	if stored == nil || !stored.UpdateDate.Valid {
		return false, nil
	}

	return !stored.UpdateDate.Time.Before(listed.Time) &&
		stored.SyncedEndpoints.Has(model.EndpointDetail|model.EndpointActions), nil
}

// SyncBill runs the full pipeline for a single bill id such as "1234hr119",
// without recording a snapshot
func (s *Syncer) SyncBill(ctx context.Context, id string) (*model.BillRecord, error) {
	if err := s.source.Validate(); err != nil {
		return nil, &OrchestratorError{Reason: "missing credentials", Err: err}
	}

	congress, billType, number, err := model.ParseBillID(id)
	if err != nil {
		return nil, err
	}

	return s.syncBill(ctx, congress, billType, number)
}

func (s *Syncer) syncBill(ctx context.Context, congress int, billType string, number int) (*model.BillRecord, error) {
	raw, err := s.fetch(ctx, congress, billType, number)
	if err != nil {
		return nil, err
	}

	rec, err := s.transformer.Transform(raw)
	if err != nil {
		var te *TransformError
		if errors.As(err, &te) && te.BillID == "" {
			te.BillID = model.BillID(congress, billType, number)
		}
		return nil, err
	}

	result := status.Derive(rec.LatestAction(), rec.Actions, rec.Bill.OriginChamber)
	rec.Bill.ProgressStage = result.Stage
	rec.Bill.ProgressDescription = result.Description
	rec.Bill.ProgressPercent = result.Percent

	if err := s.store(ctx, rec); err != nil {
		return rec, err
	}

	s.logger.Debug("synced bill", "bill", rec.Bill.ID, "stage", result.Stage, "actions", len(rec.Actions))
	return rec, nil
}

// fetch gathers the detail payload and each sub-resource the bill advertises
func (s *Syncer) fetch(ctx context.Context, congress int, billType string, number int) (*RawBill, error) {
	detail, err := s.source.FetchBill(ctx, congress, billType, number)
	if err != nil {
		return nil, err
	}
	raw := &RawBill{Detail: detail}

	if raw.Actions, err = s.source.FetchActions(ctx, congress, billType, number); err != nil {
		return nil, err
	}
	raw.Fetched |= model.EndpointActions

	if detail.Summaries.Count > 0 {
		if raw.Summaries, err = s.source.FetchSummaries(ctx, congress, billType, number); err != nil {
			return nil, err
		}
		raw.Fetched |= model.EndpointSummaries
	}

	if detail.Titles.Count > 0 {
		if raw.Titles, err = s.source.FetchTitles(ctx, congress, billType, number); err != nil {
			return nil, err
		}
		raw.Fetched |= model.EndpointTitles
	}

	if detail.TextVersions.Count > 0 {
		if raw.TextVersions, err = s.source.FetchTextVersions(ctx, congress, billType, number); err != nil {
			return nil, err
		}
		raw.Fetched |= model.EndpointText
	}

	return raw, nil
}

// store writes the bill header first, then each fetched child collection.
// A failed child write does not undo its siblings; every failure is
// reported and only successfully written endpoints are marked synced.
func (s *Syncer) store(ctx context.Context, rec *model.BillRecord) error {
	id := rec.Bill.ID

	if err := s.bills.UpsertBill(ctx, &rec.Bill); err != nil {
		return &StorageError{Op: "bill", BillID: id, Err: err}
	}
	written := model.EndpointDetail

	var errs []error

	if rec.Endpoints.Has(model.EndpointActions) {
		if err := s.bills.ReplaceActions(ctx, id, rec.Actions); err != nil {
			errs = append(errs, &StorageError{Op: "actions", BillID: id, Err: err})
		} else {
			written |= model.EndpointActions
		}
	}

	if rec.Endpoints.Has(model.EndpointTitles) {
		if err := s.bills.ReplaceTitles(ctx, id, rec.Titles); err != nil {
			errs = append(errs, &StorageError{Op: "titles", BillID: id, Err: err})
		} else {
			written |= model.EndpointTitles
		}
	}

	if rec.Endpoints.Has(model.EndpointSummaries) {
		var err error
		if rec.Summary != nil {
			err = s.bills.UpsertSummary(ctx, rec.Summary)
		}
		if err != nil {
			errs = append(errs, &StorageError{Op: "summary", BillID: id, Err: err})
		} else {
			written |= model.EndpointSummaries
		}
	}

	if rec.Endpoints.Has(model.EndpointText) {
		written |= model.EndpointText
	}

	if err := s.bills.UpsertPolicyArea(ctx, id, rec.PolicyArea); err != nil {
		errs = append(errs, &StorageError{Op: "policy area", BillID: id, Err: err})
	}

	if err := s.bills.UpdateBillSyncStatus(ctx, id, written); err != nil {
		errs = append(errs, &StorageError{Op: "sync status", BillID: id, Err: err})
	}

	return errors.Join(errs...)
}

func errorDetails(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "context canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context deadline exceeded"
	}
	return err.Error()
}

// WriteSummary prints the statistics of a finished run
func WriteSummary(w io.Writer, snap *model.SyncSnapshot) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "=== Sync Summary ===")
	fmt.Fprintf(w, "Snapshot:        %d (%s)\n", snap.ID, snap.SyncType)
	fmt.Fprintf(w, "Congress:        %d\n", snap.Congress)
	fmt.Fprintf(w, "Bill types:      %s\n", strings.Join(snap.BillTypes, ", "))
	fmt.Fprintf(w, "Status:          %s\n", snap.Status)
	fmt.Fprintf(w, "Processed:       %d\n", snap.TotalProcessed)
	fmt.Fprintf(w, "Succeeded:       %d\n", snap.TotalSuccess)
	fmt.Fprintf(w, "Skipped:         %d (unchanged)\n", snap.TotalSkipped)
	fmt.Fprintf(w, "Failed:          %d\n", snap.TotalFailed)

	if attempted := snap.TotalProcessed - snap.TotalSkipped; attempted > 0 {
		rate := float64(snap.TotalSuccess) / float64(attempted) * 100
		fmt.Fprintf(w, "Success rate:    %.1f%%\n", rate)
	}
	if snap.CompletedAt.Valid {
		fmt.Fprintf(w, "Duration:        %s\n", snap.CompletedAt.Time.Sub(snap.StartedAt).Round(time.Second))
	}
	if snap.ErrorDetails != "" {
		fmt.Fprintf(w, "Error:           %s\n", snap.ErrorDetails)
	}
}
