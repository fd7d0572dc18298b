package imports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/metrics"
	"github.com/JakeFAU/youread/internal/queue/memory"
)

// DefaultTopic names the batch handoff topic when none is configured.
const DefaultTopic = "youread-import-batches"

// SessionTab is a crawler tab the worker owns for one job.
type SessionTab interface {
	crawler.Tab
	Close()
}

// TabOpener opens a fresh tab on startURL.
type TabOpener func(ctx context.Context, startURL string) (SessionTab, error)

// Dequeuer yields queued job ids.
type Dequeuer interface {
	Dequeue(ctx context.Context) (string, error)
}

// Publisher hands a batch to the consumer side.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// WorkerConfig tunes a Worker.
type WorkerConfig struct {
	// Topic receives finished batches.
	Topic string
	// JobTimeout bounds one crawl. Zero means no limit.
	JobTimeout time.Duration
	// PublishTimeout bounds the handoff, which runs even after a timed out crawl.
	PublishTimeout time.Duration
}

// Worker executes queued import jobs one at a time.
type Worker struct {
	m       *Manager
	queue   Dequeuer
	crawler *crawler.Crawler
	site    crawler.Extractor
	open    TabOpener
	pub     Publisher
	cfg     WorkerConfig
	logger  *zap.Logger
}

// NewWorker builds a worker bound to m.
func (m *Manager) NewWorker(
	queue Dequeuer,
	c *crawler.Crawler,
	site crawler.Extractor,
	open TabOpener,
	pub Publisher,
	cfg WorkerConfig,
) *Worker {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	return &Worker{
		m:       m,
		queue:   queue,
		crawler: c,
		site:    site,
		open:    open,
		pub:     pub,
		cfg:     cfg,
		logger:  m.logger.Named("worker"),
	}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", id))
		w.Process(ctx, id)
	}
}

// Process runs one job to a terminal state.
func (w *Worker) Process(ctx context.Context, id string) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	logger := w.logger.With(zap.String("job_id", id))

	job, err := w.m.store.Update(ctx, id, func(j *Job) {
		j.State = StateRunning
		j.Status = crawler.Status{Message: "opening tab", Timestamp: w.m.clock.Now()}
	})
	if err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}
	metrics.ObserveImportJob(string(StateRunning))

	runCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	tab, err := w.open(runCtx, job.Request.StartURL)
	if err != nil {
		logger.Error("open tab failed", zap.Error(err))
		w.m.fail(ctx, id, fmt.Errorf("open tab: %w", err))
		return
	}
	defer tab.Close()

	seed := job.Request.Seed
	if len(seed) == 0 {
		seed, err = Seed(runCtx, w.crawler, w.site, tab, w.logger)
		if err != nil {
			logger.Error("seed extraction failed", zap.Error(err))
			w.m.fail(ctx, id, fmt.Errorf("seed start page: %w", err))
			return
		}
	}

	var opts []crawler.RunOption
	if runID, err := uuid.Parse(id); err == nil {
		opts = append(opts, crawler.WithRunID(runID))
	}
	run := w.crawler.NewRun(tab, seed, job.Request.MaxPages, opts...)
	w.m.track(id, run)
	res, err := run.Execute(runCtx)
	w.m.untrack(id)
	if err != nil {
		logger.Warn("import rejected", zap.Error(err))
		w.m.fail(ctx, id, err)
		return
	}

	state := StateSucceeded
	errText := ""
	if res.Partial() {
		state = StatePartial
		if res.Err != nil {
			errText = res.Err.Error()
		}
	}

	if pubErr := w.publish(ctx, id, run.ID().String(), res); pubErr != nil {
		logger.Error("batch handoff failed", zap.Error(pubErr))
		state = StateFailed
		errText = pubErr.Error()
	}

	status := run.Status()
	if _, err := w.m.store.Update(ctx, id, func(j *Job) {
		j.State = state
		j.Status = status
		j.PagesVisited = res.PagesVisited
		j.Records = res.Records
		j.StopReason = res.Stop
		j.Error = errText
	}); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	metrics.ObserveImportJob(string(state))
	logger.Info("import job finished",
		zap.String("state", string(state)),
		zap.String("stop", string(res.Stop)),
		zap.Int("pages", res.PagesVisited),
		zap.Int("records", len(res.Records)),
	)
}

// Seed extracts the records on the page tab is showing, retrying with the
// crawler's extract budget.
func Seed(ctx context.Context, c *crawler.Crawler, site crawler.Extractor, tab crawler.Tab, logger *zap.Logger) ([]manga.Record, error) {
	cfg := c.Config()
	policy := crawler.RetryPolicy{
		MaxAttempts: cfg.ExtractAttempts,
		Delay:       cfg.RetryDelay,
		OnRetry: func(_ context.Context, attempt int, err error) {
			logger.Debug("seed extraction retry", zap.Int("attempt", attempt), zap.Error(err))
		},
	}
	return crawler.Retry(ctx, policy, func(ctx context.Context) ([]manga.Record, error) {
		if err := tab.Inject(ctx); err != nil {
			return nil, err
		}
		page, err := tab.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return site.Extract(page)
	})
}

// publish hands off the aggregate. It detaches from ctx's deadline so a
// timed out crawl still delivers what it collected.
func (w *Worker) publish(ctx context.Context, jobID, runID string, res crawler.Result) error {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.PublishTimeout)
	defer cancel()
	batch := Batch{
		JobID:        jobID,
		RunID:        runID,
		Records:      res.Records,
		PagesVisited: res.PagesVisited,
		StopReason:   res.Stop,
	}
	msgID, err := w.pub.Publish(pubCtx, w.cfg.Topic, batch)
	if err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	w.logger.Debug("batch published", zap.String("job_id", jobID), zap.String("message_id", msgID))
	return nil
}
