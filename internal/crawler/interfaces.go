package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/youread/internal/manga"
)

// Page is a snapshot of the document loaded in a tab.
type Page struct {
	URL  string
	HTML string
}

// Tab is the browser tab a run drives. A run owns its tab exclusively.
type Tab interface {
	// Location returns the tab's current URL.
	Location(ctx context.Context) (string, error)
	// Navigate points the tab at rawURL.
	Navigate(ctx context.Context, rawURL string) error
	// Loaded reports whether the document finished loading.
	Loaded(ctx context.Context) (bool, error)
	// Inject installs the page endpoint. Navigation discards it.
	Inject(ctx context.Context) error
	// Snapshot reads the loaded page through the endpoint. It fails with
	// ErrEndpointMissing when the endpoint is not installed.
	Snapshot(ctx context.Context) (Page, error)
}

// Extractor turns a listing page into records. It must not modify the page
// and returns an empty slice for pages without recognizable entries.
type Extractor interface {
	Extract(page Page) ([]manga.Record, error)
}

// Navigator computes the next listing page, reporting false when there is none.
type Navigator interface {
	NextPageURL(page Page) (string, bool)
}

// Site bundles the per-site strategies a run needs.
type Site interface {
	Extractor
	Navigator
	// IsListing reports whether rawURL is a paginated listing page.
	IsListing(rawURL string) bool
	// PageNumber returns the page index encoded in rawURL, or 1.
	PageNumber(rawURL string) int
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
