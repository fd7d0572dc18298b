// Package browser drives headless Chrome tabs for import runs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/youread/internal/crawler"
)

// Config controls the shared browser.
type Config struct {
	// MaxTabs bounds concurrently open tabs. Zero means unbounded.
	MaxTabs int
	// UserAgent overrides the browser user agent when set.
	UserAgent string
	// ActionTimeout bounds every command sent to a tab.
	ActionTimeout time.Duration
	// NavigateQPS throttles navigations per host. Zero disables throttling.
	NavigateQPS float64
	// Headless runs Chrome without a window.
	Headless bool
	// NoSandbox disables the Chrome sandbox (containers).
	NoSandbox bool
	// ExecPath points at a Chrome binary; empty uses the default lookup.
	ExecPath string
	// RemoteURL attaches to a running browser's devtools websocket instead of
	// launching one.
	RemoteURL string
	// Cookies is a Cookie header ("a=b; c=d") installed for CookieURL so
	// bookmark pages render for a signed-in account.
	Cookies   string
	CookieURL string
}

const defaultActionTimeout = 30 * time.Second

// Browser owns one Chrome process and hands out tabs.
type Browser struct {
	cfg     Config
	logger  *zap.Logger
	limiter chan struct{}
	cookies []*network.CookieParam

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc

	hostLimiters sync.Map
}

// New prepares a Browser. Chrome starts on the first OpenTab.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxTabs < 0 {
		return nil, errors.New("browser max tabs must be >= 0")
	}
	if cfg.NavigateQPS < 0 {
		return nil, errors.New("browser navigate qps must be >= 0")
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	cookies, err := parseCookies(cfg.Cookies, cfg.CookieURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Browser{cfg: cfg, logger: logger, cookies: cookies}
	if cfg.MaxTabs > 0 {
		b.limiter = make(chan struct{}, cfg.MaxTabs)
	}
	if cfg.RemoteURL != "" {
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	}
	return b, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Close shuts the browser down. Open tabs die with it.
func (b *Browser) Close() {
	b.mu.Lock()
	if b.browserCancel != nil {
		b.browserCancel()
		b.browserCancel = nil
		b.browserCtx = nil
	}
	b.mu.Unlock()
	b.allocCancel()
}

// OpenTab opens a dedicated tab and, when startURL is set, navigates it
// there. The caller owns the tab and must Close it.
func (b *Browser) OpenTab(ctx context.Context, startURL string) (*Tab, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	parent, err := b.ensureBrowser()
	if err != nil {
		release()
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(parent)
	stop := forwardCancel(ctx, cancel)
	err = chromedp.Run(tabCtx, b.setupAction())
	stop()
	if err != nil {
		cancel()
		release()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	t := newTab(b, tabCtx, cancel, release)
	if startURL != "" {
		if err := t.Navigate(ctx, startURL); err != nil {
			t.Close()
			return nil, err
		}
	}
	b.logger.Debug("tab opened", zap.String("url", startURL))
	return t, nil
}

// ensureBrowser starts Chrome once and reuses it for later tabs.
func (b *Browser) ensureBrowser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil && b.browserCtx.Err() == nil {
		return b.browserCtx, nil
	}
	browserCtx, cancel := chromedp.NewContext(b.allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	b.browserCtx, b.browserCancel = browserCtx, cancel
	b.logger.Info("browser started", zap.Bool("headless", b.cfg.Headless), zap.Bool("remote", b.cfg.RemoteURL != ""))
	return browserCtx, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(b.cookies) > 0 {
			if err := network.SetCookies(b.cookies).Do(ctx); err != nil {
				return fmt.Errorf("set cookies: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) (func(), error) {
	if b.limiter == nil {
		return func() {}, nil
	}
	select {
	case b.limiter <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-b.limiter }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for tab slot: %w", ctx.Err())
	}
}

func (b *Browser) waitHost(ctx context.Context, rawURL string) error {
	if b.cfg.NavigateQPS <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse navigation url: %w", err)
	}
	host := strings.ToLower(u.Host)
	val, _ := b.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(b.cfg.NavigateQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation throttle: %w", err)
	}
	return nil
}

// forwardCancel calls cancel when parent finishes, until the returned stop
// function runs.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Render loads rawURL in a short-lived tab and returns the rendered DOM. It
// shares the tab limit with imports.
func (b *Browser) Render(ctx context.Context, rawURL string) (crawler.Page, error) {
	tab, err := b.OpenTab(ctx, rawURL)
	if err != nil {
		return crawler.Page{}, err
	}
	defer tab.Close()
	html, err := tab.HTML(ctx)
	if err != nil {
		return crawler.Page{}, err
	}
	location, err := tab.Location(ctx)
	if err != nil {
		location = rawURL
	}
	return crawler.Page{URL: location, HTML: html}, nil
}
