package handlers

import (
	"context"
	"time"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/templates"
)

const syncHistoryLimit = 50

// SnapshotReader is the read side of the sync snapshot store
type SnapshotReader interface {
	LastCompletedSnapshot(ctx context.Context, congress int) (*model.SyncSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]model.SyncSnapshot, error)
}

type snapshotJSON struct {
	ID             int64      `json:"id"`
	SyncType       string     `json:"sync_type"`
	Congress       int        `json:"congress"`
	BillTypes      []string   `json:"bill_types"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TotalProcessed int        `json:"total_processed"`
	TotalSuccess   int        `json:"total_success"`
	TotalFailed    int        `json:"total_failed"`
	TotalSkipped   int        `json:"total_skipped"`
	ErrorDetails   string     `json:"error_details,omitempty"`
}

// LatestSyncHandler reports the last completed sync, the "data last updated" marker
func LatestSyncHandler(snapshots SnapshotReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := snapshots.LastCompletedSnapshot(c.UserContext(), c.QueryInt("congress", 0))
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading sync status")
		}
		if snap == nil {
			return jsonError(c, fiber.StatusNotFound, "No completed sync yet")
		}
		return c.JSON(toSnapshotJSON(snap))
	}
}

// SyncHistoryHandler renders the recent sync runs as HTML
func SyncHistoryHandler(snapshots SnapshotReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		runs, err := snapshots.ListSnapshots(ctx, syncHistoryLimit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading sync history")
		}

		last, err := snapshots.LastCompletedSnapshot(ctx, 0)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading sync status")
		}
		var lastSynced *time.Time
		if last != nil && last.CompletedAt.Valid {
			lastSynced = &last.CompletedAt.Time
		}

		page := templates.SyncHistory(runs, lastSynced)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

func toSnapshotJSON(s *model.SyncSnapshot) snapshotJSON {
	out := snapshotJSON{
		ID:             s.ID,
		SyncType:       string(s.SyncType),
		Congress:       s.Congress,
		BillTypes:      s.BillTypes,
		Status:         string(s.Status),
		StartedAt:      s.StartedAt,
		TotalProcessed: s.TotalProcessed,
		TotalSuccess:   s.TotalSuccess,
		TotalFailed:    s.TotalFailed,
		TotalSkipped:   s.TotalSkipped,
		ErrorDetails:   s.ErrorDetails,
	}
	if s.CompletedAt.Valid {
		t := s.CompletedAt.Time
		out.CompletedAt = &t
	}
	if out.BillTypes == nil {
		out.BillTypes = []string{}
	}
	return out
}
