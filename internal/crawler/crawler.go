package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/progress"
)

// convergeAfterEmptyPages consecutive pages without new records end a run.
const convergeAfterEmptyPages = 2

// Step names used in logs and retry events.
const (
	stepInject   = "inject"
	stepExtract  = "extract"
	stepNextPage = "next_page"
	stepNavigate = "navigate"
	stepReady    = "ready"
)

// Config bounds a run.
type Config struct {
	// MaxPages caps pages visited when a run does not ask for its own cap.
	MaxPages int
	// Attempt budgets per step.
	EnsureAttempts   int
	ExtractAttempts  int
	NextPageAttempts int
	NavigateAttempts int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// ReadyTimeout is the total readiness polling budget; once spent the run
	// proceeds to extraction anyway.
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
}

// DefaultConfig returns the production budgets.
func DefaultConfig() Config {
	return Config{
		MaxPages:          50,
		EnsureAttempts:    5,
		ExtractAttempts:   10,
		NextPageAttempts:  5,
		NavigateAttempts:  3,
		RetryDelay:        1500 * time.Millisecond,
		ReadyTimeout:      15 * time.Second,
		ReadyPollInterval: 250 * time.Millisecond,
	}
}

// Validate rejects budgets a run cannot work with.
func (c Config) Validate() error {
	switch {
	case c.MaxPages < 1:
		return errors.New("crawler max pages must be >= 1")
	case c.EnsureAttempts < 1, c.ExtractAttempts < 1, c.NextPageAttempts < 1, c.NavigateAttempts < 1:
		return errors.New("crawler attempt budgets must be >= 1")
	case c.RetryDelay < 0:
		return errors.New("crawler retry delay must be >= 0")
	case c.ReadyTimeout <= 0 || c.ReadyPollInterval <= 0:
		return errors.New("crawler readiness timeout and poll interval must be > 0")
	}
	return nil
}

func (c Config) readyPolls() int {
	return max(int(c.ReadyTimeout/c.ReadyPollInterval), 1)
}

// Crawler creates import runs for one site.
type Crawler struct {
	cfg     Config
	site    Site
	clock   Clock
	emitter progress.Emitter
	logger  *zap.Logger
}

// New validates cfg and returns a Crawler. A nil emitter discards events and
// a nil logger is replaced with a no-op logger.
func New(cfg Config, site Site, clock Clock, emitter progress.Emitter, logger *zap.Logger) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if site == nil {
		return nil, errors.New("crawler site is required")
	}
	if clock == nil {
		return nil, errors.New("crawler clock is required")
	}
	if emitter == nil {
		emitter = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, site: site, clock: clock, emitter: emitter, logger: logger}, nil
}

// Config returns the crawler's budgets.
func (c *Crawler) Config() Config {
	return c.cfg
}

// RunOption customizes a Run.
type RunOption func(*Run)

// WithRunID sets the id reported in logs and progress events.
func WithRunID(id uuid.UUID) RunOption {
	return func(r *Run) {
		r.id = id
	}
}

// Run is one import over one tab. It is single use.
type Run struct {
	c        *Crawler
	id       uuid.UUID
	tab      Tab
	seed     []manga.Record
	maxPages int
	logger   *zap.Logger

	started atomic.Bool
	state   atomic.Int32
	status  statusSlot

	// Owned by the goroutine running Execute.
	agg         *Aggregate
	page        int
	url         string
	emptyStreak int
	visited     int
}

// NewRun prepares a run over tab. seed holds the records already extracted
// from the loaded page. maxPages below 1 falls back to the configured cap.
func (c *Crawler) NewRun(tab Tab, seed []manga.Record, maxPages int, opts ...RunOption) *Run {
	if maxPages < 1 {
		maxPages = c.cfg.MaxPages
	}
	r := &Run{
		c:        c,
		tab:      tab,
		seed:     append([]manga.Record(nil), seed...),
		maxPages: maxPages,
		agg:      NewAggregate(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		r.id = id
	}
	r.logger = c.logger.With(zap.String("run_id", r.id.String()))
	return r
}

// Run executes a fresh run. See Run.Execute.
func (c *Crawler) Run(ctx context.Context, tab Tab, seed []manga.Record, maxPages int) (Result, error) {
	return c.NewRun(tab, seed, maxPages).Execute(ctx)
}

// ID returns the run id.
func (r *Run) ID() uuid.UUID {
	return r.id
}

// State returns the current state. Safe to call from any goroutine.
func (r *Run) State() State {
	return State(r.state.Load())
}

// Status returns the latest progress message. Safe to call from any goroutine.
func (r *Run) Status() Status {
	return r.status.get()
}

// MaxPages returns the page cap in effect.
func (r *Run) MaxPages() int {
	return r.maxPages
}

// Execute drives the tab until the run converges, hits its page cap, runs
// out of pages, or fails unexpectedly. The only error returned is
// ErrInvalidTabState (or ErrRunConsumed on reuse); every other failure ends
// the run with the records aggregated so far and is reported in Result.Err.
func (r *Run) Execute(ctx context.Context) (Result, error) {
	if !r.started.CompareAndSwap(false, true) {
		return Result{}, ErrRunConsumed
	}
	loc, err := r.tab.Location(ctx)
	if err == nil && !r.c.site.IsListing(loc) {
		err = fmt.Errorf("%w: %s", ErrInvalidTabState, loc)
	} else if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidTabState, err)
	}
	if err != nil {
		r.setState(StateDone)
		r.setStatus("import rejected: " + err.Error())
		r.logger.Warn("import rejected", zap.String("location", loc), zap.Error(err))
		return Result{Records: []manga.Record{}}, err
	}

	r.page = 1
	r.url = loc
	r.setStatus(fmt.Sprintf("page 1: starting import, %d seeded", len(r.seed)))
	r.emit(progress.Event{Stage: progress.StageRunStart})
	r.logger.Info("import started",
		zap.String("url", loc),
		zap.Int("seed", len(r.seed)),
		zap.Int("max_pages", r.maxPages),
	)

	res := r.loop(ctx)

	r.setState(StateDone)
	note := string(res.Stop)
	if res.Err != nil {
		note = fmt.Sprintf("%s: %v", res.Stop, res.Err)
	}
	r.setStatus(fmt.Sprintf("done after %d pages: %d total (%s)", res.PagesVisited, len(res.Records), res.Stop))
	r.emit(progress.Event{Stage: progress.StageRunDone, Note: note})
	fields := []zap.Field{
		zap.String("stop", string(res.Stop)),
		zap.Int("pages", res.PagesVisited),
		zap.Int("records", len(res.Records)),
	}
	if res.Err != nil {
		r.logger.Warn("import aborted with partial results", append(fields, zap.Error(res.Err))...)
	} else {
		r.logger.Info("import finished", fields...)
	}
	return res, nil
}

func (r *Run) loop(ctx context.Context) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = r.finish(StopAborted, fmt.Errorf("%w: %v", ErrUnexpected, p))
		}
	}()

	var (
		records []manga.Record
		target  string
		err     error
	)
	state := StateExtracting
	for {
		r.setState(state)
		switch state {
		case StateExtracting:
			if records, err = r.extract(ctx); err != nil {
				return r.finish(StopAborted, err)
			}
			state = StateMerging

		case StateMerging:
			r.merge(records)
			if r.emptyStreak >= convergeAfterEmptyPages {
				return r.finish(StopConverged, nil)
			}
			state = StateFindingNextPage

		case StateFindingNextPage:
			if r.page >= r.maxPages {
				return r.finish(StopMaxPages, nil)
			}
			var ok bool
			if target, ok, err = r.nextPage(ctx); err != nil {
				return r.finish(StopAborted, err)
			}
			if !ok {
				return r.finish(StopNoNextPage, nil)
			}
			state = StateNavigating

		case StateNavigating:
			r.page++
			r.url = target
			if err = r.navigate(ctx, target); err != nil {
				return r.finish(StopAborted, err)
			}
			state = StateAwaitingPageReady

		case StateAwaitingPageReady:
			if err = r.awaitReady(ctx, target); err != nil {
				return r.finish(StopAborted, err)
			}
			state = StateExtracting

		default:
			return r.finish(StopAborted, fmt.Errorf("%w: state %s", ErrUnexpected, state))
		}
	}
}

func (r *Run) finish(stop StopReason, err error) Result {
	return Result{
		Records:      r.agg.Records(),
		PagesVisited: r.visited,
		Stop:         stop,
		Err:          err,
	}
}

func (r *Run) merge(records []manga.Record) {
	added := r.agg.Merge(records)
	r.visited++
	if added == 0 {
		r.emptyStreak++
	} else {
		r.emptyStreak = 0
	}
	r.setStatus(fmt.Sprintf("page %d: %d new, %d total", r.page, added, r.agg.Len()))
	r.emit(progress.Event{Stage: progress.StagePageDone, New: added})
	r.logger.Debug("page merged",
		zap.Int("page", r.page),
		zap.String("url", r.url),
		zap.Int("found", len(records)),
		zap.Int("new", added),
		zap.Int("total", r.agg.Len()),
		zap.Int("empty_streak", r.emptyStreak),
	)
}

// extract makes sure the endpoint is present, then reads the page. The first
// page is never re-extracted: its records are the seed.
func (r *Run) extract(ctx context.Context) ([]manga.Record, error) {
	if err := r.ensureEndpoint(ctx); err != nil {
		return nil, err
	}
	if r.page == 1 {
		return r.seed, nil
	}
	records, err := Retry(ctx, r.policy(stepExtract, r.c.cfg.ExtractAttempts), func(ctx context.Context) ([]manga.Record, error) {
		page, err := r.tab.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return r.c.site.Extract(page)
	})
	if err := r.degrade(stepExtract, err); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Run) ensureEndpoint(ctx context.Context) error {
	_, err := Retry(ctx, r.policy(stepInject, r.c.cfg.EnsureAttempts), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.tab.Inject(ctx)
	})
	return r.degrade(stepInject, err)
}

type nextLink struct {
	url string
	ok  bool
}

func (r *Run) nextPage(ctx context.Context) (string, bool, error) {
	next, err := Retry(ctx, r.policy(stepNextPage, r.c.cfg.NextPageAttempts), func(ctx context.Context) (nextLink, error) {
		page, err := r.tab.Snapshot(ctx)
		if err != nil {
			return nextLink{}, err
		}
		u, ok := r.c.site.NextPageURL(page)
		return nextLink{url: u, ok: ok && u != ""}, nil
	})
	if err := r.degrade(stepNextPage, err); err != nil {
		return "", false, err
	}
	return next.url, next.ok, nil
}

func (r *Run) navigate(ctx context.Context, target string) error {
	_, err := Retry(ctx, r.policy(stepNavigate, r.c.cfg.NavigateAttempts), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.tab.Navigate(ctx, target)
	})
	return r.degrade(stepNavigate, err)
}

// awaitReady polls until the document is complete and the tab is on target
// or on the expected page number.
func (r *Run) awaitReady(ctx context.Context, target string) error {
	want := r.c.site.PageNumber(target)
	policy := RetryPolicy{MaxAttempts: r.c.cfg.readyPolls(), Delay: r.c.cfg.ReadyPollInterval}
	_, err := Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		loaded, err := r.tab.Loaded(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if !loaded {
			return struct{}{}, errNotReady
		}
		loc, err := r.tab.Location(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if loc != target && r.c.site.PageNumber(loc) != want {
			return struct{}{}, fmt.Errorf("%w: tab at %s", errNotReady, loc)
		}
		r.url = loc
		return struct{}{}, nil
	})
	return r.degrade(stepReady, err)
}

func (r *Run) policy(step string, attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Delay:       r.c.cfg.RetryDelay,
		OnRetry: func(ctx context.Context, attempt int, err error) {
			r.logger.Debug("retrying step",
				zap.String("step", step),
				zap.Int("attempt", attempt),
				zap.Int("page", r.page),
				zap.Error(err),
			)
			r.emit(progress.Event{Stage: progress.StageRetry, Step: step, Attempt: attempt, Note: err.Error()})
			if step != stepInject && errors.Is(err, ErrEndpointMissing) {
				if injectErr := r.tab.Inject(ctx); injectErr != nil {
					r.logger.Debug("endpoint re-injection failed", zap.Int("page", r.page), zap.Error(injectErr))
				}
			}
		},
	}
}

// degrade absorbs an exhausted retry budget so the step yields its empty
// result. Any other error is returned and ends the run.
func (r *Run) degrade(step string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRetriesExhausted) {
		r.logger.Warn("step gave up, continuing",
			zap.String("step", step),
			zap.Int("page", r.page),
			zap.String("url", r.url),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (r *Run) setState(s State) {
	r.state.Store(int32(s))
}

func (r *Run) setStatus(msg string) {
	r.status.set(msg, r.c.clock.Now())
}

func (r *Run) emit(evt progress.Event) {
	evt.RunID = r.id
	evt.TS = r.c.clock.Now()
	if evt.Page == 0 {
		evt.Page = r.page
	}
	if evt.URL == "" {
		evt.URL = r.url
	}
	evt.Total = r.agg.Len()
	r.c.emitter.Emit(evt)
}
