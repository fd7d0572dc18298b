package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/youread/internal/crawler"
)

// endpointName is the window property the page endpoint lives under.
const endpointName = "__youreadEndpoint"

const injectScript = `(() => {
  if (window.` + endpointName + `) return true;
  Object.defineProperty(window, '` + endpointName + `', {
    configurable: true,
    value: {
      version: 1,
      snapshot: () => ({
        ok: true,
        url: location.href,
        html: document.documentElement ? document.documentElement.outerHTML : ''
      })
    }
  });
  return true;
})()`

const snapshotScript = `(() => {
  const ep = window.` + endpointName + `;
  if (!ep || typeof ep.snapshot !== 'function') return {ok: false};
  return ep.snapshot();
})()`

type snapshotResult struct {
	OK   bool   `json:"ok"`
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// Tab is one Chrome tab. It satisfies crawler.Tab.
type Tab struct {
	b       *Browser
	ctx     context.Context
	cancel  context.CancelFunc
	release func()

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ crawler.Tab = (*Tab)(nil)

func newTab(b *Browser, ctx context.Context, cancel context.CancelFunc, release func()) *Tab {
	t := &Tab{b: b, ctx: ctx, cancel: cancel, release: release}
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev.(type) {
		case *inspector.EventDetached, *inspector.EventTargetCrashed:
			t.closed.Store(true)
		}
	})
	return t
}

// Location returns the tab's current URL.
func (t *Tab) Location(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, "read location", chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Navigate loads rawURL and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, rawURL string) error {
	if err := t.b.waitHost(ctx, rawURL); err != nil {
		return err
	}
	if err := t.run(ctx, "navigate", chromedp.Navigate(rawURL)); err != nil {
		if errors.Is(err, crawler.ErrTabClosed) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %s: %w", crawler.ErrNavigation, rawURL, err)
	}
	return nil
}

// Loaded reports whether document.readyState is complete.
func (t *Tab) Loaded(ctx context.Context) (bool, error) {
	var state string
	if err := t.run(ctx, "read ready state", chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return false, err
	}
	return state == "complete", nil
}

// Inject installs the page endpoint into the current document.
func (t *Tab) Inject(ctx context.Context) error {
	return t.run(ctx, "inject endpoint", chromedp.Evaluate(injectScript, nil))
}

// Snapshot reads the current document through the page endpoint.
func (t *Tab) Snapshot(ctx context.Context) (crawler.Page, error) {
	var res snapshotResult
	if err := t.run(ctx, "snapshot", chromedp.Evaluate(snapshotScript, &res)); err != nil {
		return crawler.Page{}, err
	}
	if !res.OK {
		return crawler.Page{}, crawler.ErrEndpointMissing
	}
	return crawler.Page{URL: res.URL, HTML: res.HTML}, nil
}

// HTML waits for the body and returns the outer HTML of the document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	err := t.run(ctx, "read html",
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

// Close closes the tab and frees its slot. It is safe to call more than once.
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()
		t.release()
	})
}

// Closed reports whether the tab is gone.
func (t *Tab) Closed() bool {
	return t.closed.Load() || t.ctx.Err() != nil
}

func (t *Tab) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	if t.Closed() {
		return fmt.Errorf("%s: %w", op, crawler.ErrTabClosed)
	}
	taskCtx, cancel := context.WithTimeout(t.ctx, t.b.cfg.ActionTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(taskCtx, actions...)
	return classify(op, err, ctx, t.Closed())
}

var errActionTimeout = errors.New("browser action timed out")

// classify maps a chromedp failure onto the crawler's error vocabulary. A
// caller cancellation keeps its context error, a dead tab becomes
// ErrTabClosed, and a per-action timeout stays retryable.
func classify(op string, err error, caller context.Context, tabClosed bool) error {
	switch {
	case err == nil:
		return nil
	case caller.Err() != nil:
		return fmt.Errorf("%s: %w", op, caller.Err())
	case tabClosed:
		return fmt.Errorf("%s: %w", op, crawler.ErrTabClosed)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, errActionTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
