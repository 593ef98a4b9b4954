package templates

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/billtracker/internal/model"
)

func render(t *testing.T, snapshots []model.SyncSnapshot, lastSynced *time.Time) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, SyncHistory(snapshots, lastSynced).Render(context.Background(), &buf))
	return buf.String()
}

func TestSyncHistory_Rows(t *testing.T) {
	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Minute)

	html := render(t, []model.SyncSnapshot{
		{
			ID: 7, SyncType: model.SyncTypeDaily, Congress: 119, BillTypes: []string{"hr", "s"},
			StartedAt: started, CompletedAt: sql.NullTime{Time: done, Valid: true},
			Status: model.SyncStatusCompleted, TotalProcessed: 12, TotalSuccess: 10, TotalSkipped: 2,
		},
		{
			ID: 6, SyncType: model.SyncTypeHistorical, Congress: 119, BillTypes: []string{"sjres"},
			StartedAt: started.Add(-time.Hour), Status: model.SyncStatusRunning,
		},
	}, &done)

	assert.True(t, strings.HasPrefix(html, "<!doctype html>"))
	assert.Contains(t, html, "<title>Sync history | billtracker</title>")
	assert.Contains(t, html, "Data last updated 2025-03-01 07:30 UTC")
	assert.Contains(t, html, `<tr class="status-completed"><td>7</td><td>daily</td><td>119</td><td>hr, s</td>`)
	assert.Contains(t, html, `<td>2025-03-01 07:30 UTC</td><td>completed</td><td>12</td><td>10</td><td>2</td><td>0</td>`)
	// A running snapshot has no completion time yet.
	assert.Contains(t, html, `<td>2025-03-01 05:00 UTC</td><td></td><td>running</td>`)
	assert.Equal(t, 12, strings.Count(html, "<th>"))
}

func TestSyncHistory_Empty(t *testing.T) {
	html := render(t, nil, nil)

	assert.Contains(t, html, "No completed sync yet")
	assert.Contains(t, html, "No sync runs recorded.")
	assert.NotContains(t, html, "<table>")
}
