// Package manga defines the records exchanged between the import crawler,
// the catalogs and the library.
package manga

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IDPrefix namespaces identifiers minted from MangaNato URLs.
const IDPrefix = "manganato_"

// ErrInvalidRecord reports a record missing its id or title.
var ErrInvalidRecord = errors.New("invalid manga record")

// Record is one manga found on a listing page.
type Record struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CoverImageURL   string `json:"coverImageUrl,omitempty"`
	SourceURL       string `json:"sourceUrl,omitempty"`
	LastReadChapter *int   `json:"lastReadChapter,omitempty"`
	TotalChapters   *int   `json:"totalChapters,omitempty"`
}

// Validate checks the fields every stored record must carry.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: %s has no title", ErrInvalidRecord, r.ID)
	}
	if r.LastReadChapter != nil && *r.LastReadChapter < 0 {
		return fmt.Errorf("%w: %s has negative last read chapter", ErrInvalidRecord, r.ID)
	}
	if r.TotalChapters != nil && *r.TotalChapters < 0 {
		return fmt.Errorf("%w: %s has negative total chapters", ErrInvalidRecord, r.ID)
	}
	return nil
}

// ReadingStatus is the user's tracking state for a library entry.
type ReadingStatus string

// Reading statuses.
const (
	StatusReading   ReadingStatus = "reading"
	StatusCompleted ReadingStatus = "completed"
	StatusPlanning  ReadingStatus = "planning"
	StatusPaused    ReadingStatus = "paused"
)

// ReadingStatuses lists every valid status in display order.
var ReadingStatuses = []ReadingStatus{StatusReading, StatusCompleted, StatusPaused, StatusPlanning}

// ParseReadingStatus validates a user supplied status.
func ParseReadingStatus(raw string) (ReadingStatus, error) {
	s := ReadingStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range ReadingStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown reading status %q", raw)
}

// Tracked is a library entry.
type Tracked struct {
	Record
	Description       string        `json:"description,omitempty"`
	Author            string        `json:"author,omitempty"`
	Genres            []string      `json:"genres,omitempty"`
	PublicationStatus string        `json:"status,omitempty"`
	Chapters          *int          `json:"chapters,omitempty"`
	ReadingStatus     ReadingStatus `json:"readingStatus"`
	DateAdded         time.Time     `json:"dateAdded"`
	LastUpdated       time.Time     `json:"lastUpdated"`
}

// Details is the catalog view of a single title.
type Details struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	CoverImageURL string   `json:"coverImage,omitempty"`
	Status        string   `json:"status,omitempty"`
	Chapters      *int     `json:"chapters,omitempty"`
	Author        string   `json:"author,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	SourceURL     string   `json:"sourceUrl,omitempty"`
}

// SearchResult is one catalog search hit.
type SearchResult struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	CoverImageURL string   `json:"coverImage,omitempty"`
	Description   string   `json:"description,omitempty"`
	AltTitles     []string `json:"altTitles,omitempty"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
