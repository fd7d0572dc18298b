// Package catalog defines the search surface shared by the MangaDex and
// MangaNato clients.
package catalog

import (
	"context"
	"errors"

	"github.com/JakeFAU/youread/internal/manga"
)

// ErrNotFound reports an unknown manga id.
var ErrNotFound = errors.New("manga not found")

// ErrUpstream wraps failures talking to a catalog.
var ErrUpstream = errors.New("catalog upstream failed")

// Searcher finds manga by free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]manga.SearchResult, error)
}

// Catalog is a searchable source with a detail view.
type Catalog interface {
	Searcher
	Details(ctx context.Context, id string) (manga.Details, error)
}
