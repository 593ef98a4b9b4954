package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jjenkins/billtracker/internal/model"
)

// SyncStore handles database operations for sync snapshots
type SyncStore struct {
	db *sql.DB
}

// NewSyncStore creates a new SyncStore
func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db}
}

const snapshotColumns = `
	id, sync_type, congress, bill_types, started_at, updated_at, completed_at, status,
	total_processed, total_success, total_failed, total_skipped, error_details`

func scanSnapshot(row rowScanner) (*model.SyncSnapshot, error) {
	var snap model.SyncSnapshot
	err := row.Scan(
		&snap.ID,
		&snap.SyncType,
		&snap.Congress,
		pq.Array(&snap.BillTypes),
		&snap.StartedAt,
		&snap.UpdatedAt,
		&snap.CompletedAt,
		&snap.Status,
		&snap.TotalProcessed,
		&snap.TotalSuccess,
		&snap.TotalFailed,
		&snap.TotalSkipped,
		&snap.ErrorDetails,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// CreateSnapshot inserts a new snapshot and fills in its id
func (s *SyncStore) CreateSnapshot(ctx context.Context, snap *model.SyncSnapshot) error {
	if snap.StartedAt.IsZero() {
		snap.StartedAt = time.Now()
	}
	snap.UpdatedAt = snap.StartedAt
	billTypes := snap.BillTypes
	if billTypes == nil {
		billTypes = []string{}
	}

	query := `
		INSERT INTO sync_snapshots (sync_type, congress, bill_types, started_at, updated_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		string(snap.SyncType),
		snap.Congress,
		pq.Array(billTypes),
		snap.StartedAt,
		snap.UpdatedAt,
		string(snap.Status),
	).Scan(&snap.ID)

	if err != nil {
		return fmt.Errorf("failed to create sync snapshot: %w", err)
	}
	return nil
}

// UpdateSnapshotProgress patches the running counts and bumps the heartbeat
func (s *SyncStore) UpdateSnapshotProgress(ctx context.Context, snap *model.SyncSnapshot) error {
	snap.UpdatedAt = time.Now()

	query := `
		UPDATE sync_snapshots SET
			congress = $2,
			total_processed = $3,
			total_success = $4,
			total_failed = $5,
			total_skipped = $6,
			updated_at = $7
		WHERE id = $1 AND status = 'running'
	`

	_, err := s.db.ExecContext(ctx, query,
		snap.ID,
		snap.Congress,
		snap.TotalProcessed,
		snap.TotalSuccess,
		snap.TotalFailed,
		snap.TotalSkipped,
		snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync snapshot %d: %w", snap.ID, err)
	}
	return nil
}

// FinishSnapshot records the final status, counts and error detail of a run
func (s *SyncStore) FinishSnapshot(ctx context.Context, snap *model.SyncSnapshot) error {
	snap.UpdatedAt = time.Now()
	if !snap.CompletedAt.Valid {
		snap.CompletedAt = sql.NullTime{Time: snap.UpdatedAt, Valid: true}
	}

	query := `
		UPDATE sync_snapshots SET
			congress = $2,
			status = $3,
			total_processed = $4,
			total_success = $5,
			total_failed = $6,
			total_skipped = $7,
			error_details = $8,
			completed_at = $9,
			updated_at = $10
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query,
		snap.ID,
		snap.Congress,
		string(snap.Status),
		snap.TotalProcessed,
		snap.TotalSuccess,
		snap.TotalFailed,
		snap.TotalSkipped,
		snap.ErrorDetails,
		snap.CompletedAt,
		snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync snapshot %d: %w", snap.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync snapshot %d: %w", snap.ID, ErrNotFound)
	}
	return nil
}

// FailStaleSnapshots marks running snapshots whose heartbeat is older than
// before as failed, returning how many were reclassified
func (s *SyncStore) FailStaleSnapshots(ctx context.Context, before time.Time, reason string) (int, error) {
	query := `
		UPDATE sync_snapshots SET
			status = 'failed',
			error_details = $2,
			completed_at = $3,
			updated_at = $3
		WHERE status = 'running' AND updated_at < $1
	`

	res, err := s.db.ExecContext(ctx, query, before, reason, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale sync snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count stale sync snapshots: %w", err)
	}
	return int(n), nil
}

// LastCompletedSnapshot returns the most recently started completed run for a
// congress, or nil. A zero congress matches any.
func (s *SyncStore) LastCompletedSnapshot(ctx context.Context, congress int) (*model.SyncSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM sync_snapshots
		WHERE status = 'completed' AND ($1 = 0 OR congress = $1)
		ORDER BY started_at DESC
		LIMIT 1`

	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, congress))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed sync: %w", err)
	}
	return snap, nil
}

// LastCompletedScope returns the most recently started completed run of a
// congress whose bill types include billType, or nil
func (s *SyncStore) LastCompletedScope(ctx context.Context, congress int, billType string) (*model.SyncSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM sync_snapshots
		WHERE status = 'completed' AND congress = $1 AND $2 = ANY(bill_types)
		ORDER BY started_at DESC
		LIMIT 1`

	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, congress, billType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed %s sync: %w", billType, err)
	}
	return snap, nil
}

// GetSnapshot retrieves a snapshot by id, or nil
func (s *SyncStore) GetSnapshot(ctx context.Context, id int64) (*model.SyncSnapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM sync_snapshots WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync snapshot %d: %w", id, err)
	}
	return snap, nil
}

// ListSnapshots returns the most recent snapshots, newest first
func (s *SyncStore) ListSnapshots(ctx context.Context, limit int) ([]model.SyncSnapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM sync_snapshots ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.SyncSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}
