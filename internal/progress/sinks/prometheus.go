package sinks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/youread/internal/progress"
)

// PrometheusSink exports import progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runPages      prometheus.Histogram

	pagesVisited prometheus.Counter
	newRecords   prometheus.Counter
	retries      *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "youread_import_runs_started_total",
			Help: "Import runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "youread_import_runs_completed_total",
			Help: "Import runs completed partitioned by stop reason.",
		}, []string{"stop"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "youread_import_runs_active",
			Help: "Import runs currently driving a tab.",
		}),
		runPages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "youread_import_run_pages",
			Help:    "Pages visited per completed import run.",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 30, 50},
		}),
		pagesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "youread_import_pages_total",
			Help: "Listing pages extracted and merged.",
		}),
		newRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "youread_import_new_records_total",
			Help: "Records first seen by an import run.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "youread_import_retries_total",
			Help: "Step retries partitioned by step.",
		}, []string{"step"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runPages,
		s.pagesVisited,
		s.newRecords,
		s.retries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsActive.Inc()
			}
		case progress.StagePageDone:
			s.pagesVisited.Inc()
			if evt.New > 0 {
				s.newRecords.Add(float64(evt.New))
			}
		case progress.StageRetry:
			s.retries.WithLabelValues(evt.Step).Inc()
		case progress.StageRunDone:
			s.runsCompleted.WithLabelValues(stopReason(evt.Note)).Inc()
			s.runPages.Observe(float64(evt.Page))
			if s.tracker.complete(evt.RunID) {
				s.runsActive.Dec()
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// stopReason extracts the reason from a RUN_DONE note ("aborted: cause").
func stopReason(note string) string {
	reason, _, _ := strings.Cut(note, ":")
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "unknown"
	}
	return reason
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
