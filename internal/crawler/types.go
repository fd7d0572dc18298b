package crawler

import "github.com/JakeFAU/youread/internal/manga"

// State is a run's position in the import state machine.
type State int

// Run states.
const (
	StateExtracting State = iota
	StateMerging
	StateFindingNextPage
	StateNavigating
	StateAwaitingPageReady
	StateDone
)

func (s State) String() string {
	switch s {
	case StateExtracting:
		return "extracting"
	case StateMerging:
		return "merging"
	case StateFindingNextPage:
		return "finding_next_page"
	case StateNavigating:
		return "navigating"
	case StateAwaitingPageReady:
		return "awaiting_page_ready"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// StopReason explains why a run reached Done.
type StopReason string

// Stop reasons.
const (
	StopConverged  StopReason = "converged"
	StopMaxPages   StopReason = "max_pages"
	StopNoNextPage StopReason = "no_next_page"
	StopAborted    StopReason = "aborted"
)

// Result is the outcome of a run.
type Result struct {
	// Records is the deduplicated aggregate in first-discovery order.
	Records []manga.Record
	// PagesVisited counts merged pages, including the seeded first page.
	PagesVisited int
	Stop         StopReason
	// Err is the failure that aborted the run, if any. The run still
	// returns what it aggregated before the failure.
	Err error
}

// Partial reports whether the run ended early on an unexpected failure.
func (r Result) Partial() bool {
	return r.Stop == StopAborted
}
