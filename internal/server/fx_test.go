package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/browser"
	"github.com/JakeFAU/youread/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:  config.ServerConfig{Port: 0, RequestTimeout: time.Second},
		Logging: config.LoggingConfig{Development: true, Level: "error"},
		Crawler: config.CrawlerConfig{
			MaxPages:          5,
			EnsureAttempts:    1,
			ExtractAttempts:   1,
			NextPageAttempts:  1,
			NavigateAttempts:  1,
			ReadyTimeout:      time.Second,
			ReadyPollInterval: 10 * time.Millisecond,
		},
		Browser: config.BrowserConfig{MaxTabs: 1, Headless: true},
		Catalog: config.CatalogConfig{
			MangaDexBaseURL:  "http://127.0.0.1:1",
			MangaNatoBaseURL: "http://127.0.0.1:1",
			Timeout:          time.Second,
		},
		Library: config.LibraryConfig{Backend: "blob", DocumentKey: "library.json"},
		Storage: config.StorageConfig{Backend: "memory"},
		PubSub:  config.PubSubConfig{Backend: "memory"},
		Progress: config.ProgressConfig{
			BufferSize:     8,
			MaxBatchEvents: 4,
			MaxBatchWait:   10 * time.Millisecond,
			SinkTimeout:    time.Second,
		},
		RateLimit: config.RateLimitConfig{PerHostQPS: 10, Burst: 1},
		Proxy:     config.ProxyConfig{Timeout: time.Second, MaxBytes: 1 << 20},
		Imports:   config.ImportsConfig{Workers: 2, QueueDepth: 4, JobTimeout: time.Minute},
	}
}

func TestNewAppRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewApp(nil, zap.NewNop())
	require.Error(t, err)
}

func TestBuildInMemory(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	require.NotNil(t, app.library)
	require.NotNil(t, app.dispatch)
	require.Nil(t, app.pool)
	require.Nil(t, app.subscriber)
	require.Equal(t, "youread-import-batches", app.topic())

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/library", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"manga":[]}`, rec.Body.String())

	require.NoError(t, app.ready(context.Background()))
	app.Close(context.Background())
	app.Close(context.Background())
}

func TestSetupLibraryPostgresNeedsDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Library.Backend = "postgres"
	app, err := NewApp(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, app.setupStorage(context.Background()))
	require.NoError(t, app.setupDatabase(context.Background()))
	require.ErrorContains(t, app.setupLibrary(), "requires db.dsn")
}

func TestNewCrawlerRejectsBadBudgets(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Crawler.MaxPages = 0
	_, err := NewCrawler(cfg, nil, nil, zap.NewNop())
	require.Error(t, err)
}

func TestTabOpenerReturnsNilInterfaceOnError(t *testing.T) {
	t.Parallel()

	b, err := browser.New(browser.Config{MaxTabs: 1, RemoteURL: "ws://127.0.0.1:1/devtools/browser/none"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tab, err := TabOpener(b)(ctx, "about:blank")
	require.Error(t, err)
	require.Nil(t, tab)
}

func TestOpenLibrary(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	lib, release, err := OpenLibrary(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { release(context.Background()) })

	stats, err := lib.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Total)
}
