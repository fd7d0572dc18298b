package sinks

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/progress"
	"github.com/JakeFAU/youread/internal/store"
)

// StoreSink persists runs and their events via a store.ProgressRepository.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes run starts first, then the raw events, then completions,
// so event rows always reference an existing run.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil || len(batch) == 0 {
		return nil
	}
	rows := make([]store.EventRow, 0, len(batch))
	var done []progress.Event
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, evt.RunID, evt.TS, evt.URL); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageRunDone:
			done = append(done, evt)
		}
		rows = append(rows, store.EventRow{
			RunID:   evt.RunID,
			TS:      evt.TS,
			Stage:   string(evt.Stage),
			Page:    evt.Page,
			URL:     evt.URL,
			New:     evt.New,
			Total:   evt.Total,
			Step:    evt.Step,
			Attempt: evt.Attempt,
			Note:    evt.Note,
		})
	}
	if err := s.repo.AppendEvents(ctx, rows); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	for _, evt := range done {
		stop, cause, _ := strings.Cut(evt.Note, ":")
		status := store.RunDone
		var errMsg *string
		if stop == "aborted" {
			status = store.RunAborted
			if cause = strings.TrimSpace(cause); cause != "" {
				errMsg = &cause
			}
		}
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, status, stop, evt.Page, evt.Total, errMsg); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
