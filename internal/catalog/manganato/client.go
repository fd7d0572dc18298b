// Package manganato searches and reads MangaNato through the HTML fetcher,
// falling back to a browser render when the static page is a script
// challenge.
package manganato

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/catalog"
	"github.com/JakeFAU/youread/internal/crawler"
	collyfetcher "github.com/JakeFAU/youread/internal/fetcher/colly"
	"github.com/JakeFAU/youread/internal/manga"
	natosite "github.com/JakeFAU/youread/internal/site/manganato"
)

// Fetcher retrieves raw pages.
type Fetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Renderer loads a page in a browser.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (crawler.Page, error)
}

// Detector decides when a fetched page needs rendering.
type Detector interface {
	NeedsRender(statusCode int, body []byte) bool
}

// Config wires the client. Renderer and Detector are optional; without both
// no render fallback happens.
type Config struct {
	Site     *natosite.Site
	Fetcher  Fetcher
	Renderer Renderer
	Detector Detector
}

// Client is the MangaNato catalog.
type Client struct {
	site     *natosite.Site
	fetcher  Fetcher
	renderer Renderer
	detector Detector
	logger   *zap.Logger
}

var _ catalog.Catalog = (*Client)(nil)

// New builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Site == nil {
		return nil, fmt.Errorf("manganato site is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("manganato fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		site:     cfg.Site,
		fetcher:  cfg.Fetcher,
		renderer: cfg.Renderer,
		detector: cfg.Detector,
		logger:   logger.Named("manganato"),
	}, nil
}

// Search runs a site search. Spaces in the query become underscores, the
// way the site builds its search paths.
func (c *Client) Search(ctx context.Context, query string) ([]manga.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	slug := strings.Join(strings.Fields(query), "_")
	page, err := c.load(ctx, c.site.BaseURL()+"/search/story/"+url.PathEscape(slug))
	if err != nil {
		return nil, err
	}
	return c.site.ParseSearch(page.HTML)
}

// Details reads a manga page. ref is a manganato_ id or a MangaNato URL.
func (c *Client) Details(ctx context.Context, ref string) (manga.Details, error) {
	target, err := c.detailURL(ref)
	if err != nil {
		return manga.Details{}, err
	}
	page, err := c.load(ctx, target)
	if err != nil {
		return manga.Details{}, err
	}
	// Key details by the requested URL; redirects may land on a mirror.
	page.URL = target
	return c.site.ExtractDetails(page)
}

func (c *Client) detailURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if !c.site.IsSiteURL(ref) {
			return "", fmt.Errorf("%w: not a manganato url: %s", catalog.ErrNotFound, ref)
		}
		return ref, nil
	}
	slug := manga.SlugFromID(ref)
	if slug == "" || strings.ContainsAny(slug, "/?#") {
		return "", fmt.Errorf("%w: invalid id %q", catalog.ErrNotFound, ref)
	}
	return c.site.BaseURL() + "/manga/" + url.PathEscape(slug), nil
}

func (c *Client) load(ctx context.Context, target string) (crawler.Page, error) {
	resp, err := c.fetcher.Fetch(ctx, collyfetcher.Request{
		URL: target,
		Headers: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
			"Referer":         {c.site.BaseURL() + "/"},
		},
	})
	if err != nil {
		return crawler.Page{}, fmt.Errorf("%w: fetch %s: %v", catalog.ErrUpstream, target, err)
	}

	if c.renderer != nil && c.detector != nil && c.detector.NeedsRender(resp.StatusCode, resp.Body) {
		c.logger.Info("rendering page in browser", zap.String("url", target), zap.Int("status", resp.StatusCode))
		page, rerr := c.renderer.Render(ctx, target)
		if rerr != nil {
			return crawler.Page{}, fmt.Errorf("%w: render %s: %v", catalog.ErrUpstream, target, rerr)
		}
		return page, nil
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return crawler.Page{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, target)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return crawler.Page{}, fmt.Errorf("%w: manganato returned status %d", catalog.ErrUpstream, resp.StatusCode)
	}
	return crawler.Page{URL: resp.URL, HTML: string(resp.Body)}, nil
}
