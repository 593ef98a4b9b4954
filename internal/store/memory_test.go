package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/billtracker/internal/model"
)

func date(y int, m time.Month, d int) sql.NullTime {
	return sql.NullTime{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func sampleBill() *model.Bill {
	return &model.Bill{
		ID:                  "1234hr119",
		Congress:            119,
		BillType:            "hr",
		BillNumber:          1234,
		TypeLabel:           "H.R.",
		Title:               "Clean Water Act Amendments of 2025",
		CleanTitle:          "Clean Water Act Amendments of 2025",
		IntroducedDate:      date(2025, 1, 14),
		OriginChamber:       model.ChamberHouse,
		SponsorName:         "Rep. Garcia, Maria",
		SponsorParty:        "D",
		SponsorState:        "CA",
		ProgressStage:       model.StageInCommittee,
		ProgressDescription: "In Committee",
		ProgressPercent:     25,
		LatestActionDate:    date(2025, 2, 20),
		LatestActionText:    "Referred to the Subcommittee on Water Resources.",
		UpdateDate:          date(2025, 3, 4),
	}
}

// contract runs the same behavioral checks against any store implementation
type billContract interface {
	GetBill(ctx context.Context, id string) (*model.Bill, error)
	ListBills(ctx context.Context, f BillFilter) ([]model.Bill, int, error)
	LatestCongress(ctx context.Context) (int, error)
	UpsertBill(ctx context.Context, b *model.Bill) error
	ReplaceActions(ctx context.Context, billID string, actions []model.Action) error
	ReplaceTitles(ctx context.Context, billID string, titles []model.Title) error
	UpsertSummary(ctx context.Context, s *model.Summary) error
	UpsertPolicyArea(ctx context.Context, billID, name string) error
	UpdateBillSyncStatus(ctx context.Context, billID string, bits model.Endpoint) error
	GetActions(ctx context.Context, billID string) ([]model.Action, error)
	GetTitles(ctx context.Context, billID string) ([]model.Title, error)
	GetLatestSummary(ctx context.Context, billID string) (*model.Summary, error)
	GetPolicyArea(ctx context.Context, billID string) (string, error)
}

func runBillContract(t *testing.T, s billContract) {
	ctx := context.Background()

	t.Run("upsert is idempotent", func(t *testing.T) {
		require.NoError(t, s.UpsertBill(ctx, sampleBill()))
		require.NoError(t, s.UpsertBill(ctx, sampleBill()))

		bills, total, err := s.ListBills(ctx, BillFilter{Congress: 119})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, bills, 1)

		got, err := s.GetBill(ctx, "1234hr119")
		require.NoError(t, err)
		want := sampleBill()
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.SponsorName, got.SponsorName)
		assert.Equal(t, want.ProgressStage, got.ProgressStage)
		assert.Equal(t, want.ProgressPercent, got.ProgressPercent)
		assert.True(t, want.IntroducedDate.Time.Equal(got.IntroducedDate.Time))
		assert.Equal(t, model.Endpoint(0), got.SyncedEndpoints)
	})

	t.Run("patch preserves unspecified fields", func(t *testing.T) {
		patch := &model.Bill{
			ID:                  "1234hr119",
			Congress:            119,
			BillType:            "hr",
			BillNumber:          1234,
			ProgressStage:       model.StagePassedOneChamber,
			ProgressDescription: "Passed One Chamber",
			ProgressPercent:     50,
		}
		require.NoError(t, s.UpsertBill(ctx, patch))

		got, err := s.GetBill(ctx, "1234hr119")
		require.NoError(t, err)
		assert.Equal(t, "Clean Water Act Amendments of 2025", got.Title)
		assert.Equal(t, "Rep. Garcia, Maria", got.SponsorName)
		assert.True(t, got.IntroducedDate.Valid)
		assert.Equal(t, model.StagePassedOneChamber, got.ProgressStage)
	})

	t.Run("invalid stage is rejected", func(t *testing.T) {
		b := sampleBill()
		b.ProgressStage = 33
		assert.Error(t, s.UpsertBill(ctx, b))
	})

	t.Run("sync status bitmask is monotonic", func(t *testing.T) {
		require.NoError(t, s.UpdateBillSyncStatus(ctx, "1234hr119", 0b001))
		require.NoError(t, s.UpdateBillSyncStatus(ctx, "1234hr119", 0b010))

		got, err := s.GetBill(ctx, "1234hr119")
		require.NoError(t, err)
		assert.Equal(t, model.Endpoint(0b011), got.SyncedEndpoints)

		require.NoError(t, s.UpsertBill(ctx, sampleBill()))
		got, err = s.GetBill(ctx, "1234hr119")
		require.NoError(t, err)
		assert.Equal(t, model.Endpoint(0b011), got.SyncedEndpoints)
	})

	t.Run("sync status for missing bill", func(t *testing.T) {
		assert.ErrorIs(t, s.UpdateBillSyncStatus(ctx, "9hr119", model.EndpointDetail), ErrNotFound)
	})

	t.Run("actions are replaced not appended", func(t *testing.T) {
		first := []model.Action{
			{ActionDate: date(2025, 1, 14), Text: "Introduced in House", ActionType: "IntroReferral"},
			{ActionDate: date(2025, 1, 14), Text: "Referred to the House Committee on Transportation.", ActionType: "IntroReferral"},
		}
		second := append(first, model.Action{ActionDate: date(2025, 2, 20), Text: "Referred to the Subcommittee on Water Resources.", ActionType: "Committee", SourceName: "House committee actions", SourceCode: "1"})

		require.NoError(t, s.ReplaceActions(ctx, "1234hr119", first))
		require.NoError(t, s.ReplaceActions(ctx, "1234hr119", second))

		got, err := s.GetActions(ctx, "1234hr119")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "Introduced in House", got[0].Text)
		assert.Equal(t, "House committee actions", got[2].SourceName)
		assert.Equal(t, 2, got[2].Seq)

		require.NoError(t, s.ReplaceActions(ctx, "1234hr119", nil))
		got, err = s.GetActions(ctx, "1234hr119")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("children require the bill", func(t *testing.T) {
		assert.ErrorIs(t, s.ReplaceActions(ctx, "9hr119", []model.Action{{Text: "x"}}), ErrNotFound)
		assert.ErrorIs(t, s.ReplaceTitles(ctx, "9hr119", []model.Title{{Title: "x"}}), ErrNotFound)
	})

	t.Run("titles are replaced", func(t *testing.T) {
		require.NoError(t, s.ReplaceTitles(ctx, "1234hr119", []model.Title{{Title: "a"}, {Title: "b"}}))
		require.NoError(t, s.ReplaceTitles(ctx, "1234hr119", []model.Title{{Title: "c", TitleType: "Display Title"}}))

		got, err := s.GetTitles(ctx, "1234hr119")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c", got[0].Title)
	})

	t.Run("summary keyed by update date", func(t *testing.T) {
		older := &model.Summary{BillID: "1234hr119", UpdateDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), VersionCode: "00", Text: "old"}
		newer := &model.Summary{BillID: "1234hr119", UpdateDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), VersionCode: "07", Text: "new"}

		require.NoError(t, s.UpsertSummary(ctx, older))
		require.NoError(t, s.UpsertSummary(ctx, newer))

		again := *newer
		again.Text = "new, corrected"
		require.NoError(t, s.UpsertSummary(ctx, &again))
		assert.Equal(t, newer.ID, again.ID)

		latest, err := s.GetLatestSummary(ctx, "1234hr119")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "07", latest.VersionCode)
		assert.Equal(t, "new, corrected", latest.Text)
	})

	t.Run("policy area replaced and cleared", func(t *testing.T) {
		require.NoError(t, s.UpsertPolicyArea(ctx, "1234hr119", "Environmental Protection"))
		require.NoError(t, s.UpsertPolicyArea(ctx, "1234hr119", "Transportation and Public Works"))

		name, err := s.GetPolicyArea(ctx, "1234hr119")
		require.NoError(t, err)
		assert.Equal(t, "Transportation and Public Works", name)

		require.NoError(t, s.UpsertPolicyArea(ctx, "1234hr119", ""))
		name, err = s.GetPolicyArea(ctx, "1234hr119")
		require.NoError(t, err)
		assert.Empty(t, name)
	})

	t.Run("list filters and latest congress", func(t *testing.T) {
		other := sampleBill()
		other.ID = "7s118"
		other.Congress = 118
		other.BillType = "s"
		other.BillNumber = 7
		other.ProgressStage = model.StageBecameLaw
		other.ProgressDescription = "Became Law"
		other.ProgressPercent = 100
		require.NoError(t, s.UpsertBill(ctx, other))

		latest, err := s.LatestCongress(ctx)
		require.NoError(t, err)
		assert.Equal(t, 119, latest)

		bills, total, err := s.ListBills(ctx, BillFilter{Stage: model.StageBecameLaw})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, bills, 1)
		assert.Equal(t, "7s118", bills[0].ID)

		bills, total, err = s.ListBills(ctx, BillFilter{BillType: "HR"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "1234hr119", bills[0].ID)

		bills, total, err = s.ListBills(ctx, BillFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, bills, 1)
	})

	t.Run("missing bill reads", func(t *testing.T) {
		b, err := s.GetBill(ctx, "404hr119")
		require.NoError(t, err)
		assert.Nil(t, b)

		sum, err := s.GetLatestSummary(ctx, "404hr119")
		require.NoError(t, err)
		assert.Nil(t, sum)
	})
}

type snapshotContract interface {
	CreateSnapshot(ctx context.Context, snap *model.SyncSnapshot) error
	UpdateSnapshotProgress(ctx context.Context, snap *model.SyncSnapshot) error
	FinishSnapshot(ctx context.Context, snap *model.SyncSnapshot) error
	FailStaleSnapshots(ctx context.Context, before time.Time, reason string) (int, error)
	LastCompletedSnapshot(ctx context.Context, congress int) (*model.SyncSnapshot, error)
	LastCompletedScope(ctx context.Context, congress int, billType string) (*model.SyncSnapshot, error)
	GetSnapshot(ctx context.Context, id int64) (*model.SyncSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]model.SyncSnapshot, error)
}

func runSnapshotContract(t *testing.T, s snapshotContract) {
	ctx := context.Background()
	started := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	snap := &model.SyncSnapshot{
		SyncType:  model.SyncTypeHistorical,
		Congress:  119,
		BillTypes: []string{"hr", "s"},
		StartedAt: started,
		Status:    model.SyncStatusRunning,
	}
	require.NoError(t, s.CreateSnapshot(ctx, snap))
	require.NotZero(t, snap.ID)

	snap.TotalProcessed, snap.TotalSuccess, snap.TotalFailed = 10, 9, 1
	require.NoError(t, s.UpdateSnapshotProgress(ctx, snap))

	got, err := s.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusRunning, got.Status)
	assert.Equal(t, 10, got.TotalProcessed)
	assert.Equal(t, []string{"hr", "s"}, got.BillTypes)

	last, err := s.LastCompletedSnapshot(ctx, 119)
	require.NoError(t, err)
	assert.Nil(t, last)

	snap.Status = model.SyncStatusCompleted
	require.NoError(t, s.FinishSnapshot(ctx, snap))

	last, err = s.LastCompletedSnapshot(ctx, 119)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, snap.ID, last.ID)
	assert.True(t, last.CompletedAt.Valid)
	assert.Equal(t, 9, last.TotalSuccess)

	scoped, err := s.LastCompletedScope(ctx, 119, "s")
	require.NoError(t, err)
	require.NotNil(t, scoped)
	assert.Equal(t, snap.ID, scoped.ID)

	scoped, err = s.LastCompletedScope(ctx, 119, "sjres")
	require.NoError(t, err)
	assert.Nil(t, scoped, "run did not cover sjres")

	scoped, err = s.LastCompletedScope(ctx, 118, "hr")
	require.NoError(t, err)
	assert.Nil(t, scoped)

	// A finished run is not touched by late progress patches.
	snap.TotalProcessed = 99
	require.NoError(t, s.UpdateSnapshotProgress(ctx, snap))
	got, err = s.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalProcessed)

	abandoned := &model.SyncSnapshot{
		SyncType:  model.SyncTypeDaily,
		Congress:  119,
		StartedAt: started,
		Status:    model.SyncStatusRunning,
	}
	require.NoError(t, s.CreateSnapshot(ctx, abandoned))

	n, err := s.FailStaleSnapshots(ctx, time.Now().Add(-30*time.Minute), "sync was interrupted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = s.GetSnapshot(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, got.Status)
	assert.Equal(t, "sync was interrupted", got.ErrorDetails)

	list, err := s.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(list), 2)
}

func TestMemory_BillContract(t *testing.T) {
	runBillContract(t, NewMemory())
}

func TestMemory_SnapshotContract(t *testing.T) {
	runSnapshotContract(t, NewMemory())
}

func TestMemory_FailOn(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := assert.AnError
	m.FailOn = func(op, billID string) error {
		if op == "summary" {
			return boom
		}
		return nil
	}

	require.NoError(t, m.UpsertBill(ctx, sampleBill()))
	err := m.UpsertSummary(ctx, &model.Summary{BillID: "1234hr119", UpdateDate: time.Now()})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.SummaryCount("1234hr119"))
}

func TestMemory_CountByStage(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertBill(ctx, sampleBill()))
	law := sampleBill()
	law.ID, law.BillNumber = "1hr119", 1
	law.ProgressStage = model.StageBecameLaw
	require.NoError(t, m.UpsertBill(ctx, law))

	counts, err := m.CountByStage(ctx, 119)
	require.NoError(t, err)
	assert.Equal(t, []StageCount{
		{Stage: model.StageInCommittee, Count: 1},
		{Stage: model.StageBecameLaw, Count: 1},
	}, counts)
}
