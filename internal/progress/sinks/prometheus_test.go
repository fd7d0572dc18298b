package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/youread/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters follow a whole run.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Page: 1},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Page: 1, New: 3, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageRetry, Page: 2, Step: "extract", Attempt: 1},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Page: 2, New: 0, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Page: 2, Total: 3, Note: "converged"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch[:2]))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))
	require.NoError(t, sink.Consume(context.Background(), batch[2:]))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("converged")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.pagesVisited))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.newRecords))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.retries.WithLabelValues("extract")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runPages, "youread_import_run_pages"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestStopReason(t *testing.T) {
	t.Parallel()

	require.Equal(t, "converged", stopReason("converged"))
	require.Equal(t, "aborted", stopReason("aborted: tab closed"))
	require.Equal(t, "unknown", stopReason(""))
}
