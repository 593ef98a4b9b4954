package service

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned when a sync is started without API credentials
var ErrMissingAPIKey = errors.New("congress API key is not configured")

// FetchError is a network or HTTP failure talking to the Congress API
type FetchError struct {
	Path       string
	StatusCode int // zero for network errors
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s", e.Path, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the request may succeed if repeated
func (e *FetchError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// TransformError means a payload did not have the shape the transformer needs.
// The bill is skipped; retrying will not help.
type TransformError struct {
	BillID string
	Reason string
}

func (e *TransformError) Error() string {
	if e.BillID == "" {
		return fmt.Sprintf("transform bill: %s", e.Reason)
	}
	return fmt.Sprintf("transform bill %s: %s", e.BillID, e.Reason)
}

// StorageError is a failed write for one bill or one of its child collections
type StorageError struct {
	Op     string
	BillID string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s for bill %s: %v", e.Op, e.BillID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// OrchestratorError aborts a whole sync run
type OrchestratorError struct {
	Reason string
	Err    error
}

func (e *OrchestratorError) Error() string {
	if e.Err == nil {
		return "sync aborted: " + e.Reason
	}
	return fmt.Sprintf("sync aborted: %s: %v", e.Reason, e.Err)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }
