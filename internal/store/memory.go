package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jjenkins/billtracker/internal/model"
)

// Memory is an in-process store with the same semantics as the Postgres
// stores. It backs dry runs and tests.
type Memory struct {
	mu          sync.RWMutex
	bills       map[string]*model.Bill
	actions     map[string][]model.Action
	titles      map[string][]model.Title
	summaries   map[string]map[time.Time]*model.Summary
	policyAreas map[string]model.PolicyArea
	snapshots   []*model.SyncSnapshot
	nextID      int64

	now func() time.Time

	// FailOn, when set, is consulted before every write; a non-nil error
	// aborts that write. op is one of "bill", "actions", "titles",
	// "summary", "policy area", "sync status".
	FailOn func(op, billID string) error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		bills:       make(map[string]*model.Bill),
		actions:     make(map[string][]model.Action),
		titles:      make(map[string][]model.Title),
		summaries:   make(map[string]map[time.Time]*model.Summary),
		policyAreas: make(map[string]model.PolicyArea),
		now:         time.Now,
	}
}

func (m *Memory) fail(op, billID string) error {
	if m.FailOn == nil {
		return nil
	}
	return m.FailOn(op, billID)
}

// GetBill retrieves a bill by id, or nil
func (m *Memory) GetBill(_ context.Context, id string) (*model.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bills[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

// ListBills returns one page of bills, most recent activity first
func (m *Memory) ListBills(_ context.Context, f BillFilter) ([]model.Bill, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.Bill
	for _, b := range m.bills {
		if f.Congress > 0 && b.Congress != f.Congress {
			continue
		}
		if f.BillType != "" && b.BillType != strings.ToLower(f.BillType) {
			continue
		}
		if f.Stage != 0 && b.ProgressStage != f.Stage {
			continue
		}
		matched = append(matched, *b)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.LatestActionDate.Valid != b.LatestActionDate.Valid {
			return a.LatestActionDate.Valid
		}
		if !a.LatestActionDate.Time.Equal(b.LatestActionDate.Time) {
			return a.LatestActionDate.Time.After(b.LatestActionDate.Time)
		}
		if a.Congress != b.Congress {
			return a.Congress > b.Congress
		}
		if a.BillType != b.BillType {
			return a.BillType < b.BillType
		}
		return a.BillNumber > b.BillNumber
	})

	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := min(start+f.limit(), total)
	return matched[start:end], total, nil
}

// LatestCongress returns the highest stored congress, or 0
func (m *Memory) LatestCongress(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := 0
	for _, b := range m.bills {
		latest = max(latest, b.Congress)
	}
	return latest, nil
}

// CountByStage returns how many bills of a congress sit at each stage
func (m *Memory) CountByStage(_ context.Context, congress int) ([]StageCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[model.Stage]int)
	for _, b := range m.bills {
		if congress == 0 || b.Congress == congress {
			counts[b.ProgressStage]++
		}
	}

	var out []StageCount
	for stage, n := range counts {
		out = append(out, StageCount{Stage: stage, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

// UpsertBill inserts or patches a bill with the same rules as BillStore.UpsertBill
func (m *Memory) UpsertBill(_ context.Context, b *model.Bill) error {
	if !b.ProgressStage.Valid() {
		return fmt.Errorf("invalid progress stage %d for bill %s", b.ProgressStage, b.ID)
	}
	if err := m.fail("bill", b.ID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	existing, ok := m.bills[b.ID]
	if !ok {
		stored := *b
		stored.BillType = strings.ToLower(b.BillType)
		stored.SyncedEndpoints = 0
		stored.CreatedAt = now
		stored.UpdatedAt = now
		m.bills[b.ID] = &stored
		b.SyncedEndpoints, b.CreatedAt, b.UpdatedAt = 0, now, now
		return nil
	}

	patchString(&existing.TypeLabel, b.TypeLabel)
	patchString(&existing.Title, b.Title)
	patchString(&existing.CleanTitle, b.CleanTitle)
	patchTime(&existing.IntroducedDate, b.IntroducedDate)
	patchString(&existing.OriginChamber, b.OriginChamber)
	patchString(&existing.SponsorName, b.SponsorName)
	patchString(&existing.SponsorParty, b.SponsorParty)
	patchString(&existing.SponsorState, b.SponsorState)
	existing.ProgressStage = b.ProgressStage
	existing.ProgressDescription = b.ProgressDescription
	existing.ProgressPercent = b.ProgressPercent
	patchTime(&existing.LatestActionDate, b.LatestActionDate)
	patchString(&existing.LatestActionText, b.LatestActionText)
	patchString(&existing.TextURL, b.TextURL)
	patchString(&existing.PDFURL, b.PDFURL)
	patchTime(&existing.UpdateDate, b.UpdateDate)
	existing.UpdatedAt = now

	b.SyncedEndpoints, b.CreatedAt, b.UpdatedAt = existing.SyncedEndpoints, existing.CreatedAt, now
	return nil
}

func patchString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func patchTime(dst *sql.NullTime, v sql.NullTime) {
	if v.Valid {
		*dst = v
	}
}

// ReplaceActions swaps a bill's action set
func (m *Memory) ReplaceActions(_ context.Context, billID string, actions []model.Action) error {
	if err := m.fail("actions", billID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bills[billID]; !ok {
		return fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}
	set := make([]model.Action, len(actions))
	for i, a := range actions {
		a.ID = m.id()
		a.BillID = billID
		a.Seq = i
		set[i] = a
	}
	m.actions[billID] = set
	return nil
}

// ReplaceTitles swaps a bill's title set
func (m *Memory) ReplaceTitles(_ context.Context, billID string, titles []model.Title) error {
	if err := m.fail("titles", billID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bills[billID]; !ok {
		return fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}
	set := make([]model.Title, len(titles))
	for i, t := range titles {
		t.ID = m.id()
		t.BillID = billID
		t.Seq = i
		set[i] = t
	}
	m.titles[billID] = set
	return nil
}

// UpsertSummary inserts a summary version or patches the one with the same update date
func (m *Memory) UpsertSummary(_ context.Context, s *model.Summary) error {
	if err := m.fail("summary", s.BillID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bills[s.BillID]; !ok {
		return fmt.Errorf("bill %s: %w", s.BillID, ErrNotFound)
	}
	versions := m.summaries[s.BillID]
	if versions == nil {
		versions = make(map[time.Time]*model.Summary)
		m.summaries[s.BillID] = versions
	}

	key := s.UpdateDate.UTC()
	if existing, ok := versions[key]; ok {
		s.ID = existing.ID
		if !s.ActionDate.Valid {
			s.ActionDate = existing.ActionDate
		}
	} else {
		s.ID = m.id()
	}
	cp := *s
	versions[key] = &cp
	return nil
}

// UpsertPolicyArea replaces a bill's policy area; an empty name removes it
func (m *Memory) UpsertPolicyArea(_ context.Context, billID, name string) error {
	if err := m.fail("policy area", billID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		delete(m.policyAreas, billID)
		return nil
	}
	if _, ok := m.bills[billID]; !ok {
		return fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}
	m.policyAreas[billID] = model.PolicyArea{BillID: billID, Name: name, UpdatedAt: m.now()}
	return nil
}

// UpdateBillSyncStatus ORs bits into the bill's synced-endpoints mask
func (m *Memory) UpdateBillSyncStatus(_ context.Context, billID string, bits model.Endpoint) error {
	if err := m.fail("sync status", billID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bills[billID]
	if !ok {
		return fmt.Errorf("bill %s: %w", billID, ErrNotFound)
	}
	b.SyncedEndpoints |= bits
	return nil
}

// GetActions retrieves a bill's actions in chronological order
func (m *Memory) GetActions(_ context.Context, billID string) ([]model.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.actions[billID]), nil
}

// GetTitles retrieves a bill's titles in source order
func (m *Memory) GetTitles(_ context.Context, billID string) ([]model.Title, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.titles[billID]), nil
}

// GetLatestSummary retrieves the newest summary version of a bill, or nil
func (m *Memory) GetLatestSummary(_ context.Context, billID string) (*model.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *model.Summary
	for _, s := range m.summaries[billID] {
		if latest == nil || s.UpdateDate.After(latest.UpdateDate) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// SummaryCount returns how many summary versions are stored for a bill
func (m *Memory) SummaryCount(billID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.summaries[billID])
}

// BillCount returns how many bills are stored
func (m *Memory) BillCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bills)
}

// GetPolicyArea retrieves a bill's policy area, or ""
func (m *Memory) GetPolicyArea(_ context.Context, billID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policyAreas[billID].Name, nil
}

// CreateSnapshot records a new snapshot and assigns its id
func (m *Memory) CreateSnapshot(_ context.Context, snap *model.SyncSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.StartedAt.IsZero() {
		snap.StartedAt = m.now()
	}
	snap.UpdatedAt = snap.StartedAt
	snap.ID = m.id()

	cp := *snap
	cp.BillTypes = slices.Clone(snap.BillTypes)
	m.snapshots = append(m.snapshots, &cp)
	return nil
}

// UpdateSnapshotProgress patches running counts and bumps the heartbeat
func (m *Memory) UpdateSnapshotProgress(_ context.Context, snap *model.SyncSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap.UpdatedAt = m.now()
	stored := m.snapshot(snap.ID)
	if stored == nil || stored.Status != model.SyncStatusRunning {
		return nil
	}
	stored.Congress = snap.Congress
	stored.TotalProcessed = snap.TotalProcessed
	stored.TotalSuccess = snap.TotalSuccess
	stored.TotalFailed = snap.TotalFailed
	stored.TotalSkipped = snap.TotalSkipped
	stored.UpdatedAt = snap.UpdatedAt
	return nil
}

// FinishSnapshot records the final state of a run
func (m *Memory) FinishSnapshot(_ context.Context, snap *model.SyncSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.snapshot(snap.ID)
	if stored == nil {
		return fmt.Errorf("sync snapshot %d: %w", snap.ID, ErrNotFound)
	}
	snap.UpdatedAt = m.now()
	if !snap.CompletedAt.Valid {
		snap.CompletedAt = sql.NullTime{Time: snap.UpdatedAt, Valid: true}
	}

	cp := *snap
	cp.BillTypes = slices.Clone(snap.BillTypes)
	*stored = cp
	return nil
}

// FailStaleSnapshots marks running snapshots with a heartbeat older than before as failed
func (m *Memory) FailStaleSnapshots(_ context.Context, before time.Time, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, s := range m.snapshots {
		if s.Status == model.SyncStatusRunning && s.UpdatedAt.Before(before) {
			s.Status = model.SyncStatusFailed
			s.ErrorDetails = reason
			s.CompletedAt = sql.NullTime{Time: now, Valid: true}
			s.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// LastCompletedSnapshot returns the most recently started completed run for
// a congress, or nil. A zero congress matches any.
func (m *Memory) LastCompletedSnapshot(_ context.Context, congress int) (*model.SyncSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *model.SyncSnapshot
	for _, s := range m.snapshots {
		if s.Status != model.SyncStatusCompleted || (congress != 0 && s.Congress != congress) {
			continue
		}
		if last == nil || s.StartedAt.After(last.StartedAt) {
			last = s
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

// LastCompletedScope returns the most recently started completed run of a
// congress whose bill types include billType, or nil
func (m *Memory) LastCompletedScope(_ context.Context, congress int, billType string) (*model.SyncSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *model.SyncSnapshot
	for _, s := range m.snapshots {
		if s.Status != model.SyncStatusCompleted || s.Congress != congress || !slices.Contains(s.BillTypes, billType) {
			continue
		}
		if last == nil || s.StartedAt.After(last.StartedAt) {
			last = s
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	cp.BillTypes = slices.Clone(last.BillTypes)
	return &cp, nil
}

// GetSnapshot retrieves a snapshot by id, or nil
func (m *Memory) GetSnapshot(_ context.Context, id int64) (*model.SyncSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot(id)
	if s == nil {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// ListSnapshots returns the most recent snapshots, newest first
func (m *Memory) ListSnapshots(_ context.Context, limit int) ([]model.SyncSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}
	out := make([]model.SyncSnapshot, 0, min(limit, len(m.snapshots)))
	for i := len(m.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.snapshots[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// snapshot finds a stored snapshot by id. Callers hold m.mu.
func (m *Memory) snapshot(id int64) *model.SyncSnapshot {
	for _, s := range m.snapshots {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// id hands out the next surrogate key. Callers hold m.mu.
func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}
