// Package library keeps the user's tracked manga and applies import batches.
package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/manga"
)

var (
	// ErrNotFound is returned for an id not in the library.
	ErrNotFound = errors.New("manga not in library")
	// ErrExists is returned when adding an id that is already tracked.
	ErrExists = errors.New("manga already in library")
)

// Store persists the whole library.
type Store interface {
	Load(ctx context.Context) ([]manga.Tracked, error)
	Save(ctx context.Context, entries []manga.Tracked) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// DefaultCoverBaseURL resolves relative cover links in import batches.
const DefaultCoverBaseURL = "https://www.manganato.gg"

// Service serializes reads and writes against a Store.
type Service struct {
	mu        sync.Mutex
	store     Store
	clock     Clock
	logger    *zap.Logger
	coverBase string
}

// Option customizes a Service.
type Option func(*Service)

// WithCoverBaseURL sets the site root that relative import covers resolve against.
func WithCoverBaseURL(base string) Option {
	return func(s *Service) {
		if base != "" {
			s.coverBase = base
		}
	}
}

// NewService wires a Service. A nil clock uses wall time.
func NewService(store Store, clock Clock, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("library store is required")
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, clock: clock, logger: logger, coverBase: DefaultCoverBaseURL}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Filter narrows List. An empty Status matches every entry.
type Filter struct {
	Status manga.ReadingStatus
}

// Stats counts entries per reading status.
type Stats struct {
	Total     int `json:"total"`
	Reading   int `json:"reading"`
	Completed int `json:"completed"`
	Planning  int `json:"planning"`
	Paused    int `json:"paused"`
}

// Update carries the fields a user may change. Nil fields are left alone.
type Update struct {
	Title           *string              `json:"title,omitempty"`
	ReadingStatus   *manga.ReadingStatus `json:"readingStatus,omitempty"`
	LastReadChapter *int                 `json:"lastReadChapter,omitempty"`
	TotalChapters   *int                 `json:"totalChapters,omitempty"`
	CoverImageURL   *string              `json:"coverImageUrl,omitempty"`
	Description     *string              `json:"description,omitempty"`
	Genres          []string             `json:"genres,omitempty"`
}

// List returns entries matching f in stored order.
func (s *Service) List(ctx context.Context, f Filter) ([]manga.Tracked, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]manga.Tracked, 0, len(entries))
	for _, e := range entries {
		if f.Status == "" || e.ReadingStatus == f.Status {
			out = append(out, e)
		}
	}
	return out, nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id string) (manga.Tracked, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return manga.Tracked{}, err
	}
	i := indexOf(entries, id)
	if i < 0 {
		return manga.Tracked{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return entries[i], nil
}

// Add tracks a new entry. The reading status defaults to planning.
func (s *Service) Add(ctx context.Context, entry manga.Tracked) (manga.Tracked, error) {
	if err := entry.Validate(); err != nil {
		return manga.Tracked{}, err
	}
	if entry.ReadingStatus == "" {
		entry.ReadingStatus = manga.StatusPlanning
	} else if _, err := manga.ParseReadingStatus(string(entry.ReadingStatus)); err != nil {
		return manga.Tracked{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return manga.Tracked{}, err
	}
	if indexOf(entries, entry.ID) >= 0 {
		return manga.Tracked{}, fmt.Errorf("%s: %w", entry.ID, ErrExists)
	}
	now := s.clock.Now()
	entry.DateAdded = now
	entry.LastUpdated = now
	entries = append(entries, entry)
	if err := s.save(ctx, entries); err != nil {
		return manga.Tracked{}, err
	}
	s.logger.Info("manga tracked", zap.String("manga_id", entry.ID), zap.String("status", string(entry.ReadingStatus)))
	return entry, nil
}

// Update merges u into the entry and bumps LastUpdated.
func (s *Service) Update(ctx context.Context, id string, u Update) (manga.Tracked, error) {
	if u.ReadingStatus != nil {
		if _, err := manga.ParseReadingStatus(string(*u.ReadingStatus)); err != nil {
			return manga.Tracked{}, err
		}
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return manga.Tracked{}, fmt.Errorf("%w: empty title", manga.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return manga.Tracked{}, err
	}
	i := indexOf(entries, id)
	if i < 0 {
		return manga.Tracked{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	e := entries[i]
	if u.Title != nil {
		e.Title = *u.Title
	}
	if u.ReadingStatus != nil {
		e.ReadingStatus = *u.ReadingStatus
	}
	if u.LastReadChapter != nil {
		e.LastReadChapter = manga.IntPtr(*u.LastReadChapter)
	}
	if u.TotalChapters != nil {
		e.TotalChapters = manga.IntPtr(*u.TotalChapters)
	}
	if u.CoverImageURL != nil {
		e.CoverImageURL = *u.CoverImageURL
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Genres != nil {
		e.Genres = slices.Clone(u.Genres)
	}
	if err := e.Validate(); err != nil {
		return manga.Tracked{}, err
	}
	e.LastUpdated = s.clock.Now()
	entries[i] = e
	if err := s.save(ctx, entries); err != nil {
		return manga.Tracked{}, err
	}
	return e, nil
}

// Remove drops an entry.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(entries, id)
	if i < 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	entries = slices.Delete(entries, i, i+1)
	if err := s.save(ctx, entries); err != nil {
		return err
	}
	s.logger.Info("manga untracked", zap.String("manga_id", id))
	return nil
}

// Stats counts entries per status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(entries)}
	for _, e := range entries {
		switch e.ReadingStatus {
		case manga.StatusReading:
			st.Reading++
		case manga.StatusCompleted:
			st.Completed++
		case manga.StatusPlanning:
			st.Planning++
		case manga.StatusPaused:
			st.Paused++
		}
	}
	return st, nil
}

func (s *Service) load(ctx context.Context) ([]manga.Tracked, error) {
	entries, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	return entries, nil
}

func (s *Service) save(ctx context.Context, entries []manga.Tracked) error {
	if err := s.store.Save(ctx, entries); err != nil {
		return fmt.Errorf("save library: %w", err)
	}
	return nil
}

func indexOf(entries []manga.Tracked, id string) int {
	return slices.IndexFunc(entries, func(e manga.Tracked) bool { return e.ID == id })
}
