package model

import (
	"database/sql"
	"time"
)

// SyncType distinguishes a one-time backfill from the recurring incremental run
type SyncType string

const (
	SyncTypeHistorical SyncType = "historical"
	SyncTypeDaily      SyncType = "daily"
)

// SyncStatus is the lifecycle state of a sync run
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncSnapshot records one orchestrator run. Snapshots are never deleted.
type SyncSnapshot struct {
	ID             int64
	SyncType       SyncType
	Congress       int
	BillTypes      []string
	StartedAt      time.Time
	UpdatedAt      time.Time // heartbeat, bumped on every progress patch
	CompletedAt    sql.NullTime
	Status         SyncStatus
	TotalProcessed int
	TotalSuccess   int
	TotalFailed    int
	TotalSkipped   int
	ErrorDetails   string
}
