package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/progress"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCrawler(t *testing.T, cfg Config, site Site, emitter progress.Emitter) *Crawler {
	t.Helper()
	c, err := New(cfg, site, fixedClock{now: testNow}, emitter, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestRunConcreteScenario(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages[2] = []manga.Record{rec("b")}
	site.pages[3] = []manga.Record{rec("a"), rec("c")}
	site.pages[4] = nil
	site.pages[5] = nil
	site.lastPage = 5
	tab := newFakeTab(listingURL)
	emitter := &recordingEmitter{}
	c := newTestCrawler(t, testConfig(), site, emitter)

	res, err := c.Run(context.Background(), tab, []manga.Record{rec("a")}, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(res.Records))
	require.Equal(t, 5, res.PagesVisited)
	require.Equal(t, StopConverged, res.Stop)
	require.NoError(t, res.Err)
	require.False(t, res.Partial())
	require.Equal(t, []string{pageURL(2), pageURL(3), pageURL(4), pageURL(5)}, tab.Navigations())
	require.Zero(t, site.calls(1), "seeded page must not be re-extracted")
	require.Zero(t, site.calls(6))

	pages := emitter.Stage(progress.StagePageDone)
	require.Len(t, pages, 5)
	wantNew := []int{1, 1, 1, 0, 0}
	wantTotal := []int{1, 2, 3, 3, 3}
	for i, evt := range pages {
		require.Equal(t, i+1, evt.Page)
		require.Equal(t, wantNew[i], evt.New)
		require.Equal(t, wantTotal[i], evt.Total)
		require.NoError(t, evt.Validate())
	}
	done := emitter.Stage(progress.StageRunDone)
	require.Len(t, done, 1)
	require.Equal(t, string(StopConverged), done[0].Note)
}

func TestRunConvergesBeforeMaxPages(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages[2] = []manga.Record{rec("b")}
	site.pages[3] = []manga.Record{rec("c"), rec("d")}
	tab := newFakeTab(listingURL)
	c := newTestCrawler(t, testConfig(), site, nil)

	res, err := c.Run(context.Background(), tab, []manga.Record{rec("a")}, 100)
	require.NoError(t, err)
	require.Equal(t, StopConverged, res.Stop)
	require.Equal(t, 5, res.PagesVisited)
	require.Len(t, tab.Navigations(), 4)
	require.Zero(t, site.calls(6))
}

func TestRunRespectsPageCap(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.productive = true
	tab := newFakeTab(listingURL)
	c := newTestCrawler(t, testConfig(), site, nil)

	res, err := c.Run(context.Background(), tab, []manga.Record{rec("seed")}, 4)
	require.NoError(t, err)
	require.Equal(t, StopMaxPages, res.Stop)
	require.Equal(t, 4, res.PagesVisited)
	require.Equal(t, []string{"seed", "p2", "p3", "p4"}, ids(res.Records))
	require.Len(t, tab.Navigations(), 3)
}

func TestRunDefaultsPageCap(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxPages = 3
	site := newFakeSite()
	site.productive = true
	c := newTestCrawler(t, cfg, site, nil)

	run := c.NewRun(newFakeTab(listingURL), nil, 0)
	require.Equal(t, 3, run.MaxPages())
	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.PagesVisited)
	require.Equal(t, StopMaxPages, res.Stop)
}

func TestRunStopsWithoutNextPage(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages[2] = []manga.Record{rec("b")}
	site.lastPage = 2
	c := newTestCrawler(t, testConfig(), site, nil)

	res, err := c.Run(context.Background(), newFakeTab(listingURL), []manga.Record{rec("a")}, 10)
	require.NoError(t, err)
	require.Equal(t, StopNoNextPage, res.Stop)
	require.Equal(t, 2, res.PagesVisited)
	require.Equal(t, []string{"a", "b"}, ids(res.Records))
}

func TestRunDegradesExhaustedExtraction(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	site := newFakeSite()
	site.extractErr[2] = errors.New("receiving end does not exist")
	site.pages[3] = []manga.Record{rec("c")}
	site.lastPage = 5
	emitter := &recordingEmitter{}
	c := newTestCrawler(t, cfg, site, emitter)

	res, err := c.Run(context.Background(), newFakeTab(listingURL), []manga.Record{rec("a")}, 50)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, cfg.ExtractAttempts, site.calls(2))
	require.Equal(t, 1, site.calls(3), "crawl continues past the failing page")
	require.Equal(t, []string{"a", "c"}, ids(res.Records))
	require.Equal(t, StopConverged, res.Stop)
	require.Equal(t, 5, res.PagesVisited)

	retries := emitter.Stage(progress.StageRetry)
	require.Len(t, retries, cfg.ExtractAttempts-1)
	for i, evt := range retries {
		require.Equal(t, stepExtract, evt.Step)
		require.Equal(t, i+1, evt.Attempt)
		require.Equal(t, 2, evt.Page)
	}
}

func TestRunReinjectsMissingEndpoint(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages[2] = []manga.Record{rec("b")}
	site.lastPage = 2
	tab := newFakeTab(listingURL)
	tab.dropEndpoint[2] = 3
	c := newTestCrawler(t, testConfig(), site, nil)

	res, err := c.Run(context.Background(), tab, []manga.Record{rec("a")}, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids(res.Records))
	// One ensure per page plus one re-injection per dropped endpoint.
	require.Equal(t, 2+3, tab.injects)
}

func TestRunRejectsNonListingTab(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	tab := newFakeTab("https://example.test/manga/solo")
	c := newTestCrawler(t, testConfig(), site, nil)
	run := c.NewRun(tab, []manga.Record{rec("a")}, 10)

	res, err := run.Execute(context.Background())
	require.ErrorIs(t, err, ErrInvalidTabState)
	require.Empty(t, res.Records)
	require.NotNil(t, res.Records)
	require.Empty(t, tab.Navigations())
	require.Zero(t, tab.injects)
	require.Equal(t, StateDone, run.State())
	require.Contains(t, run.Status().Message, "import rejected")
}

func TestRunRejectsUnreadableTab(t *testing.T) {
	t.Parallel()

	tab := newFakeTab(listingURL)
	tab.locationErr = ErrTabClosed
	c := newTestCrawler(t, testConfig(), newFakeSite(), nil)

	_, err := c.Run(context.Background(), tab, nil, 10)
	require.ErrorIs(t, err, ErrInvalidTabState)
	require.ErrorIs(t, err, ErrTabClosed)
}

func TestRunKeepsPartialResultsWhenTabCloses(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages[2] = []manga.Record{rec("b")}
	tab := newFakeTab(listingURL)
	tab.closeOn = 3
	c := newTestCrawler(t, testConfig(), site, nil)

	res, err := c.Run(context.Background(), tab, []manga.Record{rec("a")}, 10)
	require.NoError(t, err)
	require.Equal(t, StopAborted, res.Stop)
	require.True(t, res.Partial())
	require.ErrorIs(t, res.Err, ErrTabClosed)
	require.Equal(t, []string{"a", "b"}, ids(res.Records))
	require.Equal(t, 2, res.PagesVisited)
}

func TestRunProceedsWhenPageNeverReady(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages[2] = []manga.Record{rec("b")}
	site.lastPage = 2
	tab := newFakeTab(listingURL)
	tab.neverReady[2] = true
	c := newTestCrawler(t, testConfig(), site, nil)

	start := time.Now()
	res, err := c.Run(context.Background(), tab, []manga.Record{rec("a")}, 10)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, []string{"a", "b"}, ids(res.Records))
	require.Equal(t, 1, site.calls(2))
}

func TestRunRecoversFromPanic(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.panicOn = 2
	c := newTestCrawler(t, testConfig(), site, nil)

	res, err := c.Run(context.Background(), newFakeTab(listingURL), []manga.Record{rec("a")}, 10)
	require.NoError(t, err)
	require.Equal(t, StopAborted, res.Stop)
	require.ErrorIs(t, res.Err, ErrUnexpected)
	require.Equal(t, []string{"a"}, ids(res.Records))
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site := newFakeSite()
	site.productive = true
	site.onExtract = func(page int) {
		if page == 3 {
			cancel()
		}
	}
	c := newTestCrawler(t, testConfig(), site, nil)

	res, err := c.Run(ctx, newFakeTab(listingURL), []manga.Record{rec("a")}, 10)
	require.NoError(t, err)
	require.Equal(t, StopAborted, res.Stop)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Equal(t, []string{"a", "p2", "p3"}, ids(res.Records))
}

func TestRunStatusIsObservable(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages[2] = []manga.Record{rec("b")}
	site.pages[3] = []manga.Record{rec("a"), rec("c")}
	site.lastPage = 5
	c := newTestCrawler(t, testConfig(), site, nil)
	run := c.NewRun(newFakeTab(listingURL), []manga.Record{rec("a")}, 50)

	var seen Status
	var seenState State
	site.onExtract = func(page int) {
		if page == 3 {
			seen = run.Status()
			seenState = run.State()
		}
	}

	_, err := run.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "page 2: 1 new, 2 total", seen.Message)
	require.Equal(t, testNow, seen.Timestamp)
	require.Equal(t, StateExtracting, seenState)
	require.Equal(t, "done after 5 pages: 3 total (converged)", run.Status().Message)
	require.Equal(t, StateDone, run.State())
}

func TestRunExecutesOnce(t *testing.T) {
	t.Parallel()

	c := newTestCrawler(t, testConfig(), newFakeSite(), nil)
	run := c.NewRun(newFakeTab(listingURL), nil, 1)
	_, err := run.Execute(context.Background())
	require.NoError(t, err)
	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrRunConsumed)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ExtractAttempts = 0
	_, err := New(cfg, newFakeSite(), fixedClock{}, nil, nil)
	require.Error(t, err)

	_, err = New(testConfig(), nil, fixedClock{}, nil, nil)
	require.Error(t, err)

	_, err = New(testConfig(), newFakeSite(), nil, nil, nil)
	require.Error(t, err)

	require.NoError(t, DefaultConfig().Validate())
	require.Equal(t, 60, DefaultConfig().readyPolls())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "awaiting_page_ready", StateAwaitingPageReady.String())
	require.Equal(t, "unknown", State(42).String())
}
