package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/jjenkins/billtracker/internal/model"
)

// ErrNotFound is returned when a write targets a bill that does not exist
var ErrNotFound = errors.New("not found")

// BillFilter narrows a bill listing. Zero fields do not filter.
type BillFilter struct {
	Congress int
	BillType string
	Stage    model.Stage
	Limit    int
	Offset   int
}

const (
	defaultListLimit = 50
	maxListLimit     = 250
)

func (f BillFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}

// StageCount is the number of bills at one progress stage
type StageCount struct {
	Stage model.Stage
	Count int
}

const billColumns = `
	id, congress, bill_type, bill_number, type_label, title, clean_title,
	introduced_date, origin_chamber, sponsor_name, sponsor_party, sponsor_state,
	progress_stage, progress_description, progress_percent,
	latest_action_date, latest_action_text, text_url, pdf_url,
	update_date, synced_endpoints, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*model.Bill, error) {
	var b model.Bill
	err := row.Scan(
		&b.ID,
		&b.Congress,
		&b.BillType,
		&b.BillNumber,
		&b.TypeLabel,
		&b.Title,
		&b.CleanTitle,
		&b.IntroducedDate,
		&b.OriginChamber,
		&b.SponsorName,
		&b.SponsorParty,
		&b.SponsorState,
		&b.ProgressStage,
		&b.ProgressDescription,
		&b.ProgressPercent,
		&b.LatestActionDate,
		&b.LatestActionText,
		&b.TextURL,
		&b.PDFURL,
		&b.UpdateDate,
		&b.SyncedEndpoints,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// BillStore handles database operations for bills and their child collections
type BillStore struct {
	db *sql.DB
}

// NewBillStore creates a new BillStore
func NewBillStore(db *sql.DB) *BillStore {
	return &BillStore{db: db}
}

// GetBill retrieves a bill by its composite id, or nil if it does not exist
func (s *BillStore) GetBill(ctx context.Context, id string) (*model.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`

	b, err := scanBill(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill %s: %w", id, err)
	}
	return b, nil
}

// ListBills returns one page of bills, most recent activity first, and the
// total number of bills matching the filter
func (s *BillStore) ListBills(ctx context.Context, f BillFilter) ([]model.Bill, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Congress > 0 {
		args = append(args, f.Congress)
		where = append(where, fmt.Sprintf("congress = $%d", len(args)))
	}
	if f.BillType != "" {
		args = append(args, strings.ToLower(f.BillType))
		where = append(where, fmt.Sprintf("bill_type = $%d", len(args)))
	}
	if f.Stage != 0 {
		args = append(args, int(f.Stage))
		where = append(where, fmt.Sprintf("progress_stage = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bills: %w", err)
	}

	args = append(args, f.limit(), max(f.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM bills%s
		ORDER BY latest_action_date DESC NULLS LAST, congress DESC, bill_type, bill_number DESC
		LIMIT $%d OFFSET $%d`, billColumns, clause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	var bills []model.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, *b)
	}

	return bills, total, rows.Err()
}

// LatestCongress returns the highest congress number stored, or 0 if there are no bills
func (s *BillStore) LatestCongress(ctx context.Context) (int, error) {
	var congress int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(congress), 0) FROM bills`).Scan(&congress)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest congress: %w", err)
	}
	return congress, nil
}

// CountByStage returns how many bills of a congress sit at each progress stage
func (s *BillStore) CountByStage(ctx context.Context, congress int) ([]StageCount, error) {
	query := `
		SELECT progress_stage, COUNT(*)
		FROM bills
		WHERE $1 = 0 OR congress = $1
		GROUP BY progress_stage
		ORDER BY progress_stage
	`

	rows, err := s.db.QueryContext(ctx, query, congress)
	if err != nil {
		return nil, fmt.Errorf("failed to count bills by stage: %w", err)
	}
	defer rows.Close()

	var counts []StageCount
	for rows.Next() {
		var c StageCount
		if err := rows.Scan(&c.Stage, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// UpsertBill inserts a bill or patches the stored one. Empty strings and
// null dates in b leave the stored values in place; progress fields are
// always overwritten. The synced-endpoints mask is never touched here.
func (s *BillStore) UpsertBill(ctx context.Context, b *model.Bill) error {
	if !b.ProgressStage.Valid() {
		return fmt.Errorf("invalid progress stage %d for bill %s", b.ProgressStage, b.ID)
	}

	query := `
		INSERT INTO bills (id, congress, bill_type, bill_number, type_label, title, clean_title,
		                   introduced_date, origin_chamber, sponsor_name, sponsor_party, sponsor_state,
		                   progress_stage, progress_description, progress_percent,
		                   latest_action_date, latest_action_text, text_url, pdf_url,
		                   update_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			type_label = COALESCE(NULLIF(EXCLUDED.type_label, ''), bills.type_label),
			title = COALESCE(NULLIF(EXCLUDED.title, ''), bills.title),
			clean_title = COALESCE(NULLIF(EXCLUDED.clean_title, ''), bills.clean_title),
			introduced_date = COALESCE(EXCLUDED.introduced_date, bills.introduced_date),
			origin_chamber = COALESCE(NULLIF(EXCLUDED.origin_chamber, ''), bills.origin_chamber),
			sponsor_name = COALESCE(NULLIF(EXCLUDED.sponsor_name, ''), bills.sponsor_name),
			sponsor_party = COALESCE(NULLIF(EXCLUDED.sponsor_party, ''), bills.sponsor_party),
			sponsor_state = COALESCE(NULLIF(EXCLUDED.sponsor_state, ''), bills.sponsor_state),
			progress_stage = EXCLUDED.progress_stage,
			progress_description = EXCLUDED.progress_description,
			progress_percent = EXCLUDED.progress_percent,
			latest_action_date = COALESCE(EXCLUDED.latest_action_date, bills.latest_action_date),
			latest_action_text = COALESCE(NULLIF(EXCLUDED.latest_action_text, ''), bills.latest_action_text),
			text_url = COALESCE(NULLIF(EXCLUDED.text_url, ''), bills.text_url),
			pdf_url = COALESCE(NULLIF(EXCLUDED.pdf_url, ''), bills.pdf_url),
			update_date = COALESCE(EXCLUDED.update_date, bills.update_date),
			updated_at = EXCLUDED.updated_at
		RETURNING synced_endpoints, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		b.ID,
		b.Congress,
		strings.ToLower(b.BillType),
		b.BillNumber,
		b.TypeLabel,
		b.Title,
		b.CleanTitle,
		b.IntroducedDate,
		b.OriginChamber,
		b.SponsorName,
		b.SponsorParty,
		b.SponsorState,
		int(b.ProgressStage),
		b.ProgressDescription,
		b.ProgressPercent,
		b.LatestActionDate,
		b.LatestActionText,
		b.TextURL,
		b.PDFURL,
		b.UpdateDate,
		time.Now(),
	).Scan(&b.SyncedEndpoints, &b.CreatedAt, &b.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert bill %s: %w", b.ID, err)
	}

	return nil
}

// ReplaceActions swaps a bill's entire action history in one transaction,
// so readers see either the old set or the new one
func (s *BillStore) ReplaceActions(ctx context.Context, billID string, actions []model.Action) error {
	return s.replace(ctx, "bill_actions", billID,
		[]string{"bill_id", "seq", "action_date", "text", "action_type", "action_code", "source_name", "source_code"},
		len(actions),
		func(i int) []any {
			a := actions[i]
			return []any{billID, i, a.ActionDate, a.Text, a.ActionType, a.ActionCode, a.SourceName, a.SourceCode}
		},
	)
}

// ReplaceTitles swaps a bill's entire title set in one transaction
func (s *BillStore) ReplaceTitles(ctx context.Context, billID string, titles []model.Title) error {
	return s.replace(ctx, "bill_titles", billID,
		[]string{"bill_id", "seq", "title", "title_type", "title_type_code", "chamber_code", "chamber_name", "text_version_code", "text_version_name"},
		len(titles),
		func(i int) []any {
			t := titles[i]
			return []any{billID, i, t.Title, t.TitleType, t.TitleTypeCode, t.ChamberCode, t.ChamberName, t.TextVersionCode, t.TextVersionName}
		},
	)
}

// replace deletes a bill's rows from table and bulk loads n new ones with COPY
func (s *BillStore) replace(ctx context.Context, table, billID string, columns []string, n int, row func(i int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bills WHERE id = $1)`, billID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check bill %s: %w", billID, err)
	}
	if !exists {
		return fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE bill_id = $1`, billID); err != nil {
		return fmt.Errorf("failed to clear %s for bill %s: %w", table, billID, err)
	}

	if n > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
		if err != nil {
			return fmt.Errorf("failed to prepare copy into %s: %w", table, err)
		}
		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to copy row %d into %s: %w", i, table, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to flush copy into %s: %w", table, err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("failed to close copy into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertSummary inserts a summary version or patches the one with the same update date
func (s *BillStore) UpsertSummary(ctx context.Context, sum *model.Summary) error {
	query := `
		INSERT INTO bill_summaries (bill_id, update_date, action_date, action_desc, version_code, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bill_id, update_date) DO UPDATE SET
			action_date = COALESCE(EXCLUDED.action_date, bill_summaries.action_date),
			action_desc = EXCLUDED.action_desc,
			version_code = EXCLUDED.version_code,
			text = EXCLUDED.text
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		sum.BillID,
		sum.UpdateDate,
		sum.ActionDate,
		sum.ActionDesc,
		sum.VersionCode,
		sum.Text,
	).Scan(&sum.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert summary for bill %s: %w", sum.BillID, err)
	}
	return nil
}

// UpsertPolicyArea replaces a bill's policy area. An empty name removes it.
func (s *BillStore) UpsertPolicyArea(ctx context.Context, billID, name string) error {
	if name == "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM bill_subjects WHERE bill_id = $1`, billID); err != nil {
			return fmt.Errorf("failed to clear policy area for bill %s: %w", billID, err)
		}
		return nil
	}

	query := `
		INSERT INTO bill_subjects (bill_id, policy_area, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (bill_id) DO UPDATE SET
			policy_area = EXCLUDED.policy_area,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, billID, name, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert policy area for bill %s: %w", billID, err)
	}
	return nil
}

// UpdateBillSyncStatus ORs bits into the bill's synced-endpoints mask. Bits are never cleared.
func (s *BillStore) UpdateBillSyncStatus(ctx context.Context, billID string, bits model.Endpoint) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bills SET synced_endpoints = synced_endpoints | $2 WHERE id = $1`,
		billID, int(bits),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync status for bill %s: %w", billID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}
	return nil
}

// GetActions retrieves a bill's actions in chronological order
func (s *BillStore) GetActions(ctx context.Context, billID string) ([]model.Action, error) {
	query := `
		SELECT id, bill_id, seq, action_date, text, action_type, action_code, source_name, source_code
		FROM bill_actions
		WHERE bill_id = $1
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions for bill %s: %w", billID, err)
	}
	defer rows.Close()

	var actions []model.Action
	for rows.Next() {
		var a model.Action
		err := rows.Scan(
			&a.ID,
			&a.BillID,
			&a.Seq,
			&a.ActionDate,
			&a.Text,
			&a.ActionType,
			&a.ActionCode,
			&a.SourceName,
			&a.SourceCode,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// GetTitles retrieves a bill's titles in source order
func (s *BillStore) GetTitles(ctx context.Context, billID string) ([]model.Title, error) {
	query := `
		SELECT id, bill_id, seq, title, title_type, title_type_code,
		       chamber_code, chamber_name, text_version_code, text_version_name
		FROM bill_titles
		WHERE bill_id = $1
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to get titles for bill %s: %w", billID, err)
	}
	defer rows.Close()

	var titles []model.Title
	for rows.Next() {
		var t model.Title
		err := rows.Scan(
			&t.ID,
			&t.BillID,
			&t.Seq,
			&t.Title,
			&t.TitleType,
			&t.TitleTypeCode,
			&t.ChamberCode,
			&t.ChamberName,
			&t.TextVersionCode,
			&t.TextVersionName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, t)
	}

	return titles, rows.Err()
}

// GetLatestSummary retrieves the newest summary version of a bill, or nil
func (s *BillStore) GetLatestSummary(ctx context.Context, billID string) (*model.Summary, error) {
	query := `
		SELECT id, bill_id, update_date, action_date, action_desc, version_code, text
		FROM bill_summaries
		WHERE bill_id = $1
		ORDER BY update_date DESC
		LIMIT 1
	`

	var sum model.Summary
	err := s.db.QueryRowContext(ctx, query, billID).Scan(
		&sum.ID,
		&sum.BillID,
		&sum.UpdateDate,
		&sum.ActionDate,
		&sum.ActionDesc,
		&sum.VersionCode,
		&sum.Text,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for bill %s: %w", billID, err)
	}
	return &sum, nil
}

// GetPolicyArea retrieves a bill's policy area, or "" if none is stored
func (s *BillStore) GetPolicyArea(ctx context.Context, billID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT policy_area FROM bill_subjects WHERE bill_id = $1`, billID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get policy area for bill %s: %w", billID, err)
	}
	return name, nil
}
