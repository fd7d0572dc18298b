package imports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/library"
	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/metrics"
)

// Importer applies a batch of records to the library.
type Importer interface {
	ImportAll(ctx context.Context, records []manga.Record) (library.ImportSummary, error)
}

// Handoff is the consumer side of the batch topic.
type Handoff struct {
	lib    Importer
	store  JobStore
	logger *zap.Logger
}

// NewHandoff wires a Handoff. store may be nil when no job should be annotated.
func NewHandoff(lib Importer, store JobStore, logger *zap.Logger) *Handoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handoff{lib: lib, store: store, logger: logger.Named("handoff")}
}

// Consume decodes one Batch and imports it. The summary is attached to the
// originating job when it is known locally.
func (h *Handoff) Consume(ctx context.Context, data []byte) error {
	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	sum, err := h.lib.ImportAll(ctx, batch.Records)
	if err != nil {
		return fmt.Errorf("import batch %s: %w", batch.JobID, err)
	}
	metrics.ObserveLibraryImport(sum.Added, sum.Updated, sum.Unchanged)

	if h.store == nil || batch.JobID == "" {
		return nil
	}
	_, err = h.store.Update(ctx, batch.JobID, func(j *Job) {
		j.Summary = &sum
	})
	switch {
	case errors.Is(err, ErrJobNotFound):
		h.logger.Debug("batch for unknown job", zap.String("job_id", batch.JobID))
	case err != nil:
		h.logger.Warn("attach import summary", zap.String("job_id", batch.JobID), zap.Error(err))
	}
	return nil
}
