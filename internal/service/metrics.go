package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/store"
)

// MetricsSource is what MetricsService reads from
type MetricsSource interface {
	LatestCongress(ctx context.Context) (int, error)
	CountByStage(ctx context.Context, congress int) ([]store.StageCount, error)
	LastCompletedSnapshot(ctx context.Context, congress int) (*model.SyncSnapshot, error)
}

// MetricsService calculates pipeline-wide bill metrics
type MetricsService struct {
	source MetricsSource
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(source MetricsSource) *MetricsService {
	return &MetricsService{source: source}
}

// StageTotal is the number of bills at one stage
type StageTotal struct {
	Stage       model.Stage `json:"stage"`
	Description string      `json:"description"`
	Count       int         `json:"count"`
}

// CongressMetrics summarizes the stored bills of one congress
type CongressMetrics struct {
	Congress         int          `json:"congress"`
	TotalBills       int          `json:"total_bills"`
	PassedAnyChamber int          `json:"passed_any_chamber"`
	BecameLaw        int          `json:"became_law"`
	Vetoed           int          `json:"vetoed"`
	ByStage          []StageTotal `json:"by_stage"`
	LastSyncedAt     *time.Time   `json:"last_synced_at,omitempty"`
}

// Calculate computes metrics for a congress. A zero congress uses the latest stored one.
func (m *MetricsService) Calculate(ctx context.Context, congress int) (*CongressMetrics, error) {
	if congress <= 0 {
		latest, err := m.source.LatestCongress(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve congress: %w", err)
		}
		congress = latest
	}

	counts, err := m.source.CountByStage(ctx, congress)
	if err != nil {
		return nil, fmt.Errorf("failed to count bills by stage: %w", err)
	}

	metrics := &CongressMetrics{Congress: congress}
	for _, c := range counts {
		metrics.TotalBills += c.Count
		metrics.ByStage = append(metrics.ByStage, StageTotal{
			Stage:       c.Stage,
			Description: c.Stage.String(),
			Count:       c.Count,
		})
		switch {
		case c.Stage == model.StageVetoed:
			metrics.Vetoed += c.Count
		case c.Stage == model.StageBecameLaw:
			metrics.BecameLaw += c.Count
		}
		if c.Stage >= model.StagePassedOneChamber {
			metrics.PassedAnyChamber += c.Count
		}
	}

	last, err := m.source.LastCompletedSnapshot(ctx, congress)
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed sync: %w", err)
	}
	if last != nil && last.CompletedAt.Valid {
		t := last.CompletedAt.Time
		metrics.LastSyncedAt = &t
	}

	return metrics, nil
}

// WriteMetrics prints metrics in the same block style as the sync summary
func WriteMetrics(w io.Writer, m *CongressMetrics) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "=== Congress Metrics ===")
	fmt.Fprintf(w, "Congress:          %d\n", m.Congress)
	fmt.Fprintf(w, "Total bills:       %d\n", m.TotalBills)
	fmt.Fprintf(w, "Passed a chamber:  %d\n", m.PassedAnyChamber)
	fmt.Fprintf(w, "Became law:        %d\n", m.BecameLaw)
	fmt.Fprintf(w, "Vetoed:            %d\n", m.Vetoed)
	for _, s := range m.ByStage {
		fmt.Fprintf(w, "  %-22s %d\n", s.Description+":", s.Count)
	}
	if m.LastSyncedAt != nil {
		fmt.Fprintf(w, "Last synced:       %s\n", m.LastSyncedAt.Format(time.RFC3339))
	}
}
