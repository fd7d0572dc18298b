package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/youread/internal/store"
)

// ProgressStore implements store.ProgressRepository using Postgres.
type ProgressStore struct {
	pool pool
}

var _ store.ProgressRepository = (*ProgressStore)(nil)

// NewProgressStore creates a ProgressStore over an existing pool.
func NewProgressStore(p pool) (*ProgressStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProgressStore{pool: p}, nil
}

// UpsertRunStart inserts the run row. Replayed starts are ignored.
func (s *ProgressStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time, startURL string) error {
	query := `
		INSERT INTO import_runs (id, start_url, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startURL, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun records the terminal state of a run.
func (s *ProgressStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	stop string,
	pages,
	total int,
	errMsg *string,
) error {
	query := `
		UPDATE import_runs
		SET finished_at = $1, status = $2, stop_reason = $3, pages = $4, total = $5, error_message = $6
		WHERE id = $7;
	`
	res, err := s.pool.Exec(ctx, query, finishedAt, status, stop, pages, total, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

var eventColumns = []string{"run_id", "ts", "stage", "page", "url", "new_records", "total", "step", "attempt", "note"}

// AppendEvents bulk loads events with COPY.
func (s *ProgressStore) AppendEvents(ctx context.Context, events []store.EventRow) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.RunID, e.TS, e.Stage, e.Page, e.URL, e.New, e.Total, e.Step, e.Attempt, e.Note})
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"import_events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy events: %w", err)
	}
	if int(n) != len(events) {
		return fmt.Errorf("copied %d of %d events", n, len(events))
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *ProgressStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, start_url, started_at, finished_at, status, stop_reason, pages, total, error_message
		FROM import_runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartURL,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.StopReason,
		&run.Pages,
		&run.Total,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListEvents retrieves a run's events, oldest first.
func (s *ProgressStore) ListEvents(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.EventRow, error) {
	query := `
		SELECT run_id, ts, stage, page, url, new_records, total, step, attempt, note
		FROM import_events
		WHERE run_id = $1
		ORDER BY ts ASC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []store.EventRow{}
	for rows.Next() {
		var e store.EventRow
		if err := rows.Scan(&e.RunID, &e.TS, &e.Stage, &e.Page, &e.URL, &e.New, &e.Total, &e.Step, &e.Attempt, &e.Note); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}
