package imports

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/metrics"
)

// Enqueuer hands job ids to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// IDGenerator mints job ids.
type IDGenerator interface {
	NewID() (string, error)
}

// ListingChecker validates start URLs.
type ListingChecker interface {
	IsListing(rawURL string) bool
}

// Manager accepts import requests and reports their progress.
type Manager struct {
	store  JobStore
	queue  Enqueuer
	ids    IDGenerator
	site   ListingChecker
	clock  crawler.Clock
	logger *zap.Logger

	// Live runs keyed by job id, for up to date status messages.
	active sync.Map
}

// NewManager wires a Manager.
func NewManager(
	store JobStore,
	queue Enqueuer,
	ids IDGenerator,
	site ListingChecker,
	clock crawler.Clock,
	logger *zap.Logger,
) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("imports: job store is required")
	case queue == nil:
		return nil, errors.New("imports: queue is required")
	case ids == nil:
		return nil, errors.New("imports: id generator is required")
	case site == nil:
		return nil, errors.New("imports: site is required")
	case clock == nil:
		return nil, errors.New("imports: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		queue:  queue,
		ids:    ids,
		site:   site,
		clock:  clock,
		logger: logger.Named("imports"),
	}, nil
}

// Start validates req, stores a queued job and enqueues it. A start URL that
// is not a listing page fails with crawler.ErrInvalidTabState.
func (m *Manager) Start(ctx context.Context, req Request) (string, error) {
	if !m.site.IsListing(req.StartURL) {
		return "", fmt.Errorf("%w: %s", crawler.ErrInvalidTabState, req.StartURL)
	}
	id, err := m.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := m.clock.Now()
	job := Job{
		ID:        id,
		Request:   req,
		State:     StateQueued,
		Status:    crawler.Status{Message: "queued", Timestamp: now},
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if err := m.queue.Enqueue(ctx, id); err != nil {
		m.fail(ctx, id, err)
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	metrics.ObserveImportJob(string(StateQueued))
	m.logger.Info("import queued",
		zap.String("job_id", id),
		zap.String("url", req.StartURL),
		zap.Int("seed", len(req.Seed)),
		zap.Int("max_pages", req.MaxPages),
	)
	return id, nil
}

// Status returns the job, with the live run status while it is running.
func (m *Manager) Status(ctx context.Context, id string) (Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if v, ok := m.active.Load(id); ok {
		if run, ok := v.(*crawler.Run); ok {
			job.Status = run.Status()
		}
	}
	return job, nil
}

func (m *Manager) track(id string, run *crawler.Run) {
	m.active.Store(id, run)
}

func (m *Manager) untrack(id string) {
	m.active.Delete(id)
}

func (m *Manager) fail(ctx context.Context, id string, cause error) {
	now := m.clock.Now()
	_, err := m.store.Update(ctx, id, func(j *Job) {
		j.State = StateFailed
		j.Error = cause.Error()
		j.Status = crawler.Status{Message: "failed: " + cause.Error(), Timestamp: now}
	})
	if err != nil {
		m.logger.Error("mark job failed", zap.String("job_id", id), zap.Error(err))
	}
	metrics.ObserveImportJob(string(StateFailed))
}
