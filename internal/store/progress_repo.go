package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// RunStatus mirrors the import_runs status column.
type RunStatus string

// Import run statuses persisted in import_runs.status.
const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunAborted RunStatus = "aborted"
)

// Run models an import_runs row.
type Run struct {
	ID        uuid.UUID  `json:"id"`
	StartURL  string     `json:"startUrl"`
	StartedAt time.Time  `json:"startedAt"`
	// FinishedAt is nil until RUN_DONE is recorded.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     RunStatus  `json:"status"`
	// StopReason is converged, max_pages, no_next_page or aborted.
	StopReason   *string `json:"stopReason,omitempty"`
	Pages        int     `json:"pages"`
	Total        int     `json:"total"`
	ErrorMessage *string `json:"error,omitempty"`
}

// EventRow models an import_events row.
type EventRow struct {
	RunID   uuid.UUID `json:"runId"`
	TS      time.Time `json:"ts"`
	Stage   string    `json:"stage"`
	Page    int       `json:"page"`
	URL     string    `json:"url,omitempty"`
	New     int       `json:"new"`
	Total   int       `json:"total"`
	Step    string    `json:"step,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Note    string    `json:"note,omitempty"`
}

// ProgressRepository persists import run progress.
type ProgressRepository interface {
	// UpsertRunStart inserts the run row, or leaves an existing one alone.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time, startURL string) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, stop string, pages, total int, errMsg *string) error
	// AppendEvents stores raw events in order.
	AppendEvents(ctx context.Context, events []EventRow) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListEvents returns a run's events oldest first.
	ListEvents(ctx context.Context, runID uuid.UUID, limit, offset int) ([]EventRow, error)
}
