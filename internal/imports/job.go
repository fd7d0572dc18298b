package imports

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/library"
	"github.com/JakeFAU/youread/internal/manga"
)

// State is the lifecycle position of an import job.
type State string

// Job states.
const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StatePartial   State = "partial"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StatePartial, StateFailed:
		return true
	default:
		return false
	}
}

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("import job not found")
	// ErrJobExists is returned when a job id is reused.
	ErrJobExists = errors.New("import job already exists")
)

// Request asks for one crawl starting at a listing page.
type Request struct {
	StartURL string `json:"start_url"`
	// Seed holds records already extracted from the start page. When empty
	// the worker extracts them itself.
	Seed []manga.Record `json:"seed,omitempty"`
	// MaxPages caps the crawl. Zero uses the crawler default.
	MaxPages int `json:"max_pages,omitempty"`
}

// Job is the tracked state of one import request.
type Job struct {
	ID           string                 `json:"job_id"`
	Request      Request                `json:"request"`
	State        State                  `json:"state"`
	Status       crawler.Status         `json:"status"`
	PagesVisited int                    `json:"pages_visited"`
	Records      []manga.Record         `json:"records,omitempty"`
	StopReason   crawler.StopReason     `json:"stop_reason,omitempty"`
	Summary      *library.ImportSummary `json:"summary,omitempty"`
	Error        string                 `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
}

// Batch is the handoff message carrying one run's aggregate.
type Batch struct {
	JobID        string             `json:"job_id"`
	RunID        string             `json:"run_id"`
	Records      []manga.Record     `json:"records"`
	PagesVisited int                `json:"pages_visited"`
	StopReason   crawler.StopReason `json:"stop_reason"`
}

// JobStore persists jobs. Update applies fn to the stored job atomically so
// concurrent writers touching different fields do not overwrite each other.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Update(ctx context.Context, id string, fn func(*Job)) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
}
