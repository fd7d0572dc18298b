package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/youread/internal/manga"
)

// LibraryStore keeps library entries in one row per manga.
type LibraryStore struct {
	pool  pool
	table string
}

// NewLibraryStore builds a store over an existing pool. An empty table uses
// tracked_manga.
func NewLibraryStore(p pool, table string) (*LibraryStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	t, err := tableName(table, "tracked_manga")
	if err != nil {
		return nil, err
	}
	return &LibraryStore{pool: p, table: t}, nil
}

const libraryColumns = `id, title, cover_image_url, source_url, last_read_chapter, total_chapters,
	description, author, genres, publication_status, chapters, reading_status, date_added, last_updated`

// Load returns every entry in insertion order.
func (s *LibraryStore) Load(ctx context.Context) ([]manga.Tracked, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY date_added, id`, libraryColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query library: %w", err)
	}
	defer rows.Close()

	entries := []manga.Tracked{}
	for rows.Next() {
		var e manga.Tracked
		var status string
		if err := rows.Scan(
			&e.ID,
			&e.Title,
			&e.CoverImageURL,
			&e.SourceURL,
			&e.LastReadChapter,
			&e.TotalChapters,
			&e.Description,
			&e.Author,
			&e.Genres,
			&e.PublicationStatus,
			&e.Chapters,
			&status,
			&e.DateAdded,
			&e.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan library row: %w", err)
		}
		e.ReadingStatus = manga.ReadingStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate library rows: %w", err)
	}
	return entries, nil
}

// Save replaces the table contents in one transaction.
func (s *LibraryStore) Save(ctx context.Context, entries []manga.Tracked) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin library tx: %w", err)
	}
	fail := func(op string, err error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%s: %w (rollback: %v)", op, err, rbErr)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fail("clear library", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`, s.table, libraryColumns)
	for _, e := range entries {
		genres := e.Genres
		if genres == nil {
			genres = []string{}
		}
		if _, err := tx.Exec(ctx, insert,
			e.ID,
			e.Title,
			e.CoverImageURL,
			e.SourceURL,
			e.LastReadChapter,
			e.TotalChapters,
			e.Description,
			e.Author,
			genres,
			e.PublicationStatus,
			e.Chapters,
			string(e.ReadingStatus),
			e.DateAdded,
			e.LastUpdated,
		); err != nil {
			return fail("insert library row "+e.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit library tx: %w", err)
	}
	return nil
}
