// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/api"
	"github.com/JakeFAU/youread/internal/browser"
	"github.com/JakeFAU/youread/internal/catalog/mangadex"
	"github.com/JakeFAU/youread/internal/catalog/manganato"
	"github.com/JakeFAU/youread/internal/clock/system"
	"github.com/JakeFAU/youread/internal/config"
	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/youread/internal/fetcher/colly"
	"github.com/JakeFAU/youread/internal/fetcher/detector"
	"github.com/JakeFAU/youread/internal/hash/sha256"
	"github.com/JakeFAU/youread/internal/id/uuid"
	"github.com/JakeFAU/youread/internal/imports"
	"github.com/JakeFAU/youread/internal/library"
	"github.com/JakeFAU/youread/internal/logging"
	"github.com/JakeFAU/youread/internal/metrics"
	"github.com/JakeFAU/youread/internal/policy/ratelimit"
	"github.com/JakeFAU/youread/internal/progress"
	progresssinks "github.com/JakeFAU/youread/internal/progress/sinks"
	"github.com/JakeFAU/youread/internal/proxy"
	memorypublisher "github.com/JakeFAU/youread/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/youread/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/youread/internal/queue/memory"
	"github.com/JakeFAU/youread/internal/recommend"
	natosite "github.com/JakeFAU/youread/internal/site/manganato"
	blob "github.com/JakeFAU/youread/internal/storage"
	gcsblob "github.com/JakeFAU/youread/internal/storage/gcs"
	localstorage "github.com/JakeFAU/youread/internal/storage/local"
	memoryStorage "github.com/JakeFAU/youread/internal/storage/memory"
	pgstore "github.com/JakeFAU/youread/internal/storage/postgres"
	"github.com/JakeFAU/youread/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	apiServer   *api.Server
	dispatch    *dispatcher.Dispatcher[string]
	queue       *queueMemory.Queue[string]
	progressHub *progress.Hub
	browser     *browser.Browser

	blobs        blob.BlobStore
	storage      *storage.Client
	pool         *pgxpool.Pool
	progressRepo store.ProgressRepository
	library      *library.Service

	publisher    imports.Publisher
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	subscriber   *gcppublisher.Subscriber
	handoff      *imports.Handoff

	closeOnce sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Log only non-sensitive config fields.
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("library_backend", cfg.Library.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("pubsub_backend", cfg.PubSub.Backend),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
	)
	return &App{cfg: cfg, logger: logger}, nil
}

// NewLogger builds the process logger from cfg and installs it globally.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")
	metrics.Init()

	if err := a.setupStorage(ctx); err != nil {
		return err
	}
	if err := a.setupDatabase(ctx); err != nil {
		return err
	}
	if err := a.setupLibrary(); err != nil {
		return err
	}
	emitter, err := a.setupProgress(ctx)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.RateLimit.PerHostQPS,
		DefaultBurst: a.cfg.RateLimit.Burst,
	})
	a.logger.Info("rate limiter enabled",
		zap.Float64("per_host_qps", a.cfg.RateLimit.PerHostQPS),
		zap.Int("burst", a.cfg.RateLimit.Burst),
	)

	a.browser, err = NewBrowser(a.cfg, a.logger)
	if err != nil {
		return err
	}
	site := natosite.New(a.cfg.Catalog.MangaNatoBaseURL, a.logger.Named("manganato"))

	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.Catalog.UserAgent,
		Timeout:     a.cfg.Catalog.Timeout,
		MaxBodySize: int(a.cfg.Proxy.MaxBytes),
		Limiter:     limiter,
	})
	dex := mangadex.New(mangadex.Config{
		BaseURL:   a.cfg.Catalog.MangaDexBaseURL,
		UserAgent: a.cfg.Catalog.UserAgent,
		Timeout:   a.cfg.Catalog.Timeout,
		Limiter:   limiter,
	}, a.logger)
	natoCfg := manganato.Config{Site: site, Fetcher: pages}
	if a.cfg.Catalog.RenderFallback {
		natoCfg.Renderer = a.browser
		natoCfg.Detector = detector.NewHeuristic(0)
		a.logger.Info("manganato render fallback enabled")
	}
	nato, err := manganato.New(natoCfg, a.logger)
	if err != nil {
		return fmt.Errorf("manganato catalog init failed: %w", err)
	}

	var cache blob.BlobStore
	if a.cfg.Proxy.CacheImage {
		cache = a.blobs
	}
	proxyHandler := proxy.New(proxy.Config{
		MangaDexBaseURL: a.cfg.Catalog.MangaDexBaseURL,
		Referer:         a.cfg.Catalog.MangaNatoBaseURL + "/",
		UserAgent:       a.cfg.Proxy.UserAgent,
		Timeout:         a.cfg.Proxy.Timeout,
		MaxBytes:        a.cfg.Proxy.MaxBytes,
	}, proxy.Deps{
		Pages:   pages,
		Limiter: limiter,
		Cache:   cache,
		Hasher:  sha256.New(),
	}, a.logger)

	if err := a.setupPublisher(ctx); err != nil {
		return err
	}
	manager, err := a.setupImports(site, emitter)
	if err != nil {
		return err
	}

	a.apiServer = api.NewServer(api.Deps{
		Library:     a.library,
		MangaDex:    dex,
		MangaNato:   nato,
		Imports:     manager,
		Progress:    a.progressRepo,
		Proxy:       proxyHandler,
		Recommender: recommend.New(dex, a.logger.Named("recommend")),
		Ready:       a.ready,
	}, *a.cfg, a.logger)
	return nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Imports.Workers))
		a.dispatch.Run(ctx)
	}()

	if a.subscriber != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("batch subscriber started", zap.String("subscription", a.cfg.PubSub.Subscription))
			if err := a.subscriber.Receive(ctx, a.handoff.Consume); err != nil {
				a.logger.Error("batch subscriber stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	a.Close(shutdownCtx)
	return nil
}

// Close gracefully shuts down the application. It is safe to call twice.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
	}
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend")
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsblob.New(a.storage, gcsblob.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case "local":
		a.logger.Info("using local storage backend")
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
	default:
		a.logger.Info("using in-memory storage backend")
		a.blobs = memoryStorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, skipping postgres library and progress repository")
		return nil
	}
	var err error
	a.pool, err = pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres pool init failed: %w", err)
	}
	a.progressRepo, err = pgstore.NewProgressStore(a.pool)
	if err != nil {
		return fmt.Errorf("progress store init failed: %w", err)
	}
	a.logger.Info("postgres progress repository initialized")
	return nil
}

func (a *App) setupLibrary() error {
	var (
		backend library.Store
		err     error
	)
	switch a.cfg.Library.Backend {
	case "postgres":
		if a.pool == nil {
			return errors.New("library.backend postgres requires db.dsn")
		}
		backend, err = pgstore.NewLibraryStore(a.pool, a.cfg.Library.Table)
		if err != nil {
			return fmt.Errorf("library store init failed: %w", err)
		}
		a.logger.Info("using postgres library store", zap.String("table", a.cfg.Library.Table))
	default:
		backend, err = library.NewDocumentStore(a.blobs, a.cfg.Library.DocumentKey)
		if err != nil {
			return fmt.Errorf("library document init failed: %w", err)
		}
		a.logger.Info("using blob library document", zap.String("key", a.cfg.Library.DocumentKey))
	}
	a.library, err = library.NewService(backend, system.New(), a.logger.Named("library"),
		library.WithCoverBaseURL(a.cfg.Catalog.MangaNatoBaseURL))
	if err != nil {
		return fmt.Errorf("library init failed: %w", err)
	}
	return nil
}

func (a *App) setupProgress(ctx context.Context) (progress.Emitter, error) {
	var sinkList []progress.Sink
	if a.progressRepo != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.progressRepo, a.logger.Named("progress_store")))
		a.logger.Debug("added progress store sink")
	}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
		a.logger.Debug("added progress log sink")
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return a.progressHub, nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Backend != "pubsub" {
		a.logger.Info("using in-memory batch handoff")
		a.publisher = memorypublisher.New()
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.gcpPublisher = gcppublisher.New(a.pubsubClient)
	a.publisher = a.gcpPublisher
	if a.cfg.PubSub.Subscription != "" {
		a.subscriber = gcppublisher.NewSubscriber(a.pubsubClient, a.cfg.PubSub.Subscription, a.logger)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
		zap.String("subscription", a.cfg.PubSub.Subscription),
	)
	return nil
}

func (a *App) setupImports(site *natosite.Site, emitter progress.Emitter) (*imports.Manager, error) {
	jobStore := imports.NewMemoryJobStore()
	a.handoff = imports.NewHandoff(a.library, jobStore, a.logger)
	if mem, ok := a.publisher.(*memorypublisher.Publisher); ok {
		mem.Subscribe(a.topic(), a.handoff.Consume)
	}

	c, err := NewCrawler(a.cfg, site, emitter, a.logger)
	if err != nil {
		return nil, err
	}

	a.queue = queueMemory.NewQueue[string](a.cfg.Imports.QueueDepth)
	manager, err := imports.NewManager(jobStore, a.queue, uuid.New(), site, system.New(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("import manager init failed: %w", err)
	}
	workerCfg := imports.WorkerConfig{
		Topic:      a.topic(),
		JobTimeout: a.cfg.Imports.JobTimeout,
	}
	a.logger.Info("import worker config",
		zap.Int("workers", a.cfg.Imports.Workers),
		zap.Int("queue_depth", a.cfg.Imports.QueueDepth),
		zap.String("topic", workerCfg.Topic),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)
	workers := make([]dispatcher.Runner, 0, a.cfg.Imports.Workers)
	for range max(a.cfg.Imports.Workers, 1) {
		workers = append(workers, manager.NewWorker(a.queue, c, site, TabOpener(a.browser), a.publisher, workerCfg))
	}
	a.dispatch = dispatcher.New[string](a.queue, workers)
	return manager, nil
}

func (a *App) topic() string {
	if a.cfg.PubSub.TopicName != "" {
		return a.cfg.PubSub.TopicName
	}
	return imports.DefaultTopic
}

// NewBrowser builds the Chrome driver from cfg. Chrome starts on first use.
func NewBrowser(cfg *config.Config, logger *zap.Logger) (*browser.Browser, error) {
	b, err := browser.New(browser.Config{
		MaxTabs:       cfg.Browser.MaxTabs,
		UserAgent:     cfg.Browser.UserAgent,
		ActionTimeout: cfg.Browser.ActionTimeout,
		NavigateQPS:   cfg.Browser.NavigateQPS,
		Headless:      cfg.Browser.Headless,
		NoSandbox:     cfg.Browser.NoSandbox,
		ExecPath:      cfg.Browser.ExecPath,
		RemoteURL:     cfg.Browser.RemoteURL,
		Cookies:       cfg.Browser.Cookies,
		CookieURL:     cfg.Browser.CookieURL,
	}, logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}
	return b, nil
}

// NewCrawler builds the bulk import crawler from cfg.
func NewCrawler(cfg *config.Config, site crawler.Site, emitter progress.Emitter, logger *zap.Logger) (*crawler.Crawler, error) {
	c, err := crawler.New(crawler.Config{
		MaxPages:          cfg.Crawler.MaxPages,
		EnsureAttempts:    cfg.Crawler.EnsureAttempts,
		ExtractAttempts:   cfg.Crawler.ExtractAttempts,
		NextPageAttempts:  cfg.Crawler.NextPageAttempts,
		NavigateAttempts:  cfg.Crawler.NavigateAttempts,
		RetryDelay:        cfg.Crawler.RetryDelay,
		ReadyTimeout:      cfg.Crawler.ReadyTimeout,
		ReadyPollInterval: cfg.Crawler.ReadyPollInterval,
	}, site, system.New(), emitter, logger.Named("crawler"))
	if err != nil {
		return nil, fmt.Errorf("crawler init failed: %w", err)
	}
	return c, nil
}

// TabOpener adapts b to the import worker. A failed open yields a nil
// interface, not a typed nil tab.
func TabOpener(b *browser.Browser) imports.TabOpener {
	return func(ctx context.Context, startURL string) (imports.SessionTab, error) {
		tab, err := b.OpenTab(ctx, startURL)
		if err != nil {
			return nil, err
		}
		return tab, nil
	}
}

// OpenLibrary builds only the library and the storage it sits on. The
// returned func releases that storage.
func OpenLibrary(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*library.Service, func(context.Context), error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	release := func(ctx context.Context) { app.closeInfrastructure(ctx) }
	if err := app.setupStorage(ctx); err != nil {
		release(ctx)
		return nil, nil, err
	}
	if err := app.setupDatabase(ctx); err != nil {
		release(ctx)
		return nil, nil, err
	}
	if err := app.setupLibrary(); err != nil {
		release(ctx)
		return nil, nil, err
	}
	return app.library, release, nil
}
