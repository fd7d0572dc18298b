package library

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/manga"
)

// ImportSummary counts what one batch did to the library.
type ImportSummary struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// ImportAll applies a crawl aggregate to the library. Unknown ids are added
// as planning entries. Known ids only pick up covers and chapter numbers
// ahead of what is stored; titles, statuses and other user edits are kept.
// Relative covers are made absolute. When a batch repeats an id the last
// occurrence wins.
func (s *Service) ImportAll(ctx context.Context, records []manga.Record) (ImportSummary, error) {
	var sum ImportSummary
	batch := make([]manga.Record, 0, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			sum.Skipped++
			continue
		}
		r.CoverImageURL = manga.AbsoluteURL(s.coverBase, r.CoverImageURL)
		if i, ok := pos[r.ID]; ok {
			batch[i] = r
			continue
		}
		pos[r.ID] = len(batch)
		batch = append(batch, r)
	}
	if len(batch) == 0 {
		return sum, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return ImportSummary{}, err
	}
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.ID] = i
	}

	now := s.clock.Now()
	for _, r := range batch {
		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(entries)
			entries = append(entries, manga.Tracked{
				Record:        r,
				ReadingStatus: manga.StatusPlanning,
				DateAdded:     now,
				LastUpdated:   now,
			})
			sum.Added++
			continue
		}
		if mergeObserved(&entries[i], r) {
			entries[i].LastUpdated = now
			sum.Updated++
		} else {
			sum.Unchanged++
		}
	}

	if sum.Added+sum.Updated > 0 {
		if err := s.save(ctx, entries); err != nil {
			return ImportSummary{}, err
		}
	}
	s.logger.Info("import batch applied",
		zap.Int("records", len(records)),
		zap.Int("added", sum.Added),
		zap.Int("updated", sum.Updated),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// mergeObserved copies crawl-observed fields onto e and reports whether
// anything changed. Chapter numbers only move forward, so a stale scrape
// never rolls back progress the user recorded.
func mergeObserved(e *manga.Tracked, r manga.Record) bool {
	changed := false
	if ahead(e.LastReadChapter, r.LastReadChapter) {
		e.LastReadChapter = manga.IntPtr(*r.LastReadChapter)
		changed = true
	}
	if ahead(e.TotalChapters, r.TotalChapters) {
		e.TotalChapters = manga.IntPtr(*r.TotalChapters)
		changed = true
	}
	if r.CoverImageURL != "" && r.CoverImageURL != e.CoverImageURL {
		e.CoverImageURL = r.CoverImageURL
		changed = true
	}
	if e.SourceURL == "" && r.SourceURL != "" {
		e.SourceURL = r.SourceURL
		changed = true
	}
	return changed
}

// ahead reports whether observed is set and beyond stored.
func ahead(stored, observed *int) bool {
	if observed == nil {
		return false
	}
	return stored == nil || *observed > *stored
}
