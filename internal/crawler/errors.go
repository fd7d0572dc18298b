package crawler

import (
	"context"
	"errors"
)

var (
	// ErrInvalidTabState rejects a run whose tab is not on a listing page.
	ErrInvalidTabState = errors.New("tab is not on a listing page")
	// ErrEndpointMissing means the page endpoint is not installed in the tab.
	ErrEndpointMissing = errors.New("page endpoint not present")
	// ErrNavigation wraps a failed navigation command.
	ErrNavigation = errors.New("navigation failed")
	// ErrTabClosed means the tab went away mid-run.
	ErrTabClosed = errors.New("tab closed")
	// ErrRetriesExhausted wraps the last error of a step that used its whole budget.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrRunConsumed is returned when a Run is executed twice.
	ErrRunConsumed = errors.New("import run already executed")
	// ErrUnexpected wraps a panic recovered from the run loop.
	ErrUnexpected = errors.New("unexpected runtime failure")

	errNotReady = errors.New("page not ready")
)

// IsTransient reports whether err is scraping friction worth retrying.
// A closed tab and a finished context are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTabClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
