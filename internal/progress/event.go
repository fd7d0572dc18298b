package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the milestone an Event reports.
type Stage string

// Import run stages.
const (
	StageRunStart Stage = "RUN_START"
	StagePageDone Stage = "PAGE_DONE"
	StageRetry    Stage = "RETRY"
	StageRunDone  Stage = "RUN_DONE"
)

// Event is one observation of an import run.
type Event struct {
	// RunID identifies the import run.
	RunID uuid.UUID
	// TS is the UTC time the crawler recorded the event.
	TS time.Time
	Stage Stage
	// Page is the logical page index (1-based).
	Page int
	// URL is the page address; it never carries credentials.
	URL string
	// New counts records first seen on Page.
	New int
	// Total is the aggregate size after Page was merged.
	Total int
	// Step and Attempt describe a retried step (extract, next_page, navigate, ready, inject).
	Step    string
	Attempt int
	// Note holds the stop reason on RUN_DONE or error text on RETRY.
	Note string
}

// Validate rejects events sinks cannot store.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StagePageDone:
		if e.Page < 1 {
			return errors.New("page done requires page >= 1")
		}
		if e.New < 0 || e.Total < e.New {
			return fmt.Errorf("inconsistent counts new=%d total=%d", e.New, e.Total)
		}
	case StageRetry:
		if e.Step == "" {
			return errors.New("retry requires step")
		}
		if e.Attempt < 1 {
			return errors.New("retry requires attempt >= 1")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
