// Package store declares the read model for live session progress.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// RunStatus mirrors the lifecycle of one browser session.
type RunStatus string

// Session statuses exposed by the status API.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// SessionRun summarizes one session as seen through its progress events.
type SessionRun struct {
	// ID is the session identifier carried by every event.
	ID    string
	RunID string
	// Target is the session label, e.g. "iPhone 14".
	Target    string
	StartedAt time.Time
	// FinishedAt is nil until the session ends.
	FinishedAt *time.Time
	Status     RunStatus
	// LastUpdate is the timestamp of the most recent event.
	LastUpdate time.Time
	// Article counters.
	Done              int
	Skipped           int
	TranslationFailed int
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// ProgressRepository serves session progress to readers.
type ProgressRepository interface {
	// GetSession loads a single session or returns ErrNotFound.
	GetSession(ctx context.Context, id string) (SessionRun, error)
	// ListSessions returns sessions in start order, filtered by optional status
	// plus limit/offset.
	ListSessions(ctx context.Context, status *RunStatus, limit, offset int) ([]SessionRun, error)
}
