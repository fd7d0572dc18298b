// Package mangadex is a client for the MangaDex JSON API.
package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/catalog"
	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/metrics"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.mangadex.org"
	// DefaultCoverBaseURL serves cover art.
	DefaultCoverBaseURL = "https://uploads.mangadex.org/covers"

	searchLimit    = 20
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

var titleLanguages = []string{"en", "ja", "ko", "zh-hans", "zh-hant"}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config configures the client.
type Config struct {
	BaseURL      string
	CoverBaseURL string
	UserAgent    string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Limiter      Waiter
}

// Client talks to MangaDex.
type Client struct {
	baseURL   string
	coverURL  string
	userAgent string
	http      *http.Client
	limiter   Waiter
	logger    *zap.Logger
}

var _ catalog.Catalog = (*Client)(nil)

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CoverBaseURL == "" {
		cfg.CoverBaseURL = DefaultCoverBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		coverURL:  strings.TrimRight(cfg.CoverBaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      client,
		limiter:   cfg.Limiter,
		logger:    logger.Named("mangadex"),
	}
}

// Search finds manga whose title or alt titles match query.
func (c *Client) Search(ctx context.Context, query string) ([]manga.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	values := listValues()
	values.Set("title", query)
	values.Set("order[relevance]", "desc")

	var payload mangaListResponse
	if err := c.getJSON(ctx, "/manga", values, &payload); err != nil {
		return nil, err
	}
	return c.searchResults(payload.Data), nil
}

// SearchByTag resolves tag to a MangaDex tag id and lists the best rated
// manga carrying it. An unknown tag yields no results.
func (c *Client) SearchByTag(ctx context.Context, tag string) ([]manga.SearchResult, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, fmt.Errorf("tag is required")
	}

	var tags tagListResponse
	if err := c.getJSON(ctx, "/manga/tag", nil, &tags); err != nil {
		return nil, err
	}
	tagID := matchTag(tags.Data, tag)
	if tagID == "" {
		c.logger.Debug("no tag matched", zap.String("tag", tag))
		return []manga.SearchResult{}, nil
	}

	values := listValues()
	values.Add("includedTags[]", tagID)
	values.Set("order[rating]", "desc")

	var payload mangaListResponse
	if err := c.getJSON(ctx, "/manga", values, &payload); err != nil {
		return nil, err
	}
	return c.searchResults(payload.Data), nil
}

// Details loads one manga with its author and English chapter count.
func (c *Client) Details(ctx context.Context, id string) (manga.Details, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/?#") {
		return manga.Details{}, fmt.Errorf("%w: invalid id %q", catalog.ErrNotFound, id)
	}
	values := url.Values{}
	values.Add("includes[]", "cover_art")
	values.Add("includes[]", "author")
	values.Add("includes[]", "artist")

	var payload mangaResponse
	if err := c.getJSON(ctx, "/manga/"+url.PathEscape(id), values, &payload); err != nil {
		return manga.Details{}, err
	}
	item := payload.Data
	if item.ID == "" {
		return manga.Details{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}

	details := manga.Details{
		ID:            item.ID,
		Title:         pickTitle(item.Attributes.Title),
		Description:   pickLocalized(item.Attributes.Description, "en", "ja"),
		CoverImageURL: c.coverImage(item),
		Status:        item.Attributes.Status,
		Author:        author(item.Relationships),
		Genres:        genres(item.Attributes.Tags),
		SourceURL:     "https://mangadex.org/title/" + item.ID,
	}
	if details.Title == "" {
		details.Title = "Unknown Title"
	}

	chapters, err := c.chapterCount(ctx, item.ID)
	if err != nil {
		c.logger.Warn("chapter count unavailable", zap.String("id", item.ID), zap.Error(err))
	} else {
		details.Chapters = manga.IntPtr(chapters)
	}
	return details, nil
}

func (c *Client) chapterCount(ctx context.Context, id string) (int, error) {
	values := url.Values{}
	values.Add("translatedLanguage[]", "en")
	var payload aggregateResponse
	if err := c.getJSON(ctx, "/manga/"+url.PathEscape(id)+"/aggregate", values, &payload); err != nil {
		return 0, err
	}
	return payload.chapterCount()
}

func (c *Client) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	target := c.baseURL + path
	if len(values) > 0 {
		target += "?" + values.Encode()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request %s: %v", catalog.ErrUpstream, path, err)
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	metrics.ObserveUpstream(target, res.StatusCode, len(body))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", catalog.ErrUpstream, path, err)
	}
	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, path)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return fmt.Errorf("%w: mangadex returned status %d", catalog.ErrUpstream, res.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", catalog.ErrUpstream, path, err)
	}
	return nil
}

func (c *Client) searchResults(items []mangaData) []manga.SearchResult {
	results := make([]manga.SearchResult, 0, len(items))
	for _, item := range items {
		title := pickTitle(item.Attributes.Title)
		if title == "" {
			title = "Unknown Title"
		}
		alts := []string{title}
		for _, alt := range item.Attributes.AltTitles {
			if name := pickLocalized(alt, "en", "ja", "ko"); name != "" {
				alts = append(alts, name)
			}
		}
		results = append(results, manga.SearchResult{
			ID:            item.ID,
			Title:         title,
			CoverImageURL: c.coverImage(item),
			Description:   pickLocalized(item.Attributes.Description, "en", "ja"),
			AltTitles:     alts,
		})
	}
	return results
}

func (c *Client) coverImage(item mangaData) string {
	for _, rel := range item.Relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			return fmt.Sprintf("%s/%s/%s.512.jpg", c.coverURL, item.ID, rel.Attributes.FileName)
		}
	}
	return ""
}

func listValues() url.Values {
	values := url.Values{}
	values.Set("limit", fmt.Sprintf("%d", searchLimit))
	values.Add("includes[]", "cover_art")
	for _, rating := range []string{"safe", "suggestive", "erotica"} {
		values.Add("contentRating[]", rating)
	}
	return values
}

func pickTitle(titles map[string]string) string {
	return pickLocalized(titles, titleLanguages...)
}

// pickLocalized returns the first non-empty value in language order, then
// the first non-empty value by key order.
func pickLocalized(values map[string]string, languages ...string) string {
	for _, lang := range languages {
		if v := strings.TrimSpace(values[lang]); v != "" {
			return v
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(values[k]); v != "" {
			return v
		}
	}
	return ""
}

func author(rels []relationship) string {
	for _, kind := range []string{"author", "artist"} {
		for _, rel := range rels {
			if rel.Type == kind && rel.Attributes.Name != "" {
				return rel.Attributes.Name
			}
		}
	}
	return ""
}

func genres(tags []tagData) []string {
	out := []string{}
	for _, tag := range tags {
		if tag.Attributes.Group != "genre" {
			continue
		}
		if name := pickLocalized(tag.Attributes.Name, "en", "ja"); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// matchTag finds the first tag whose name contains query or is contained by
// it, in any language.
func matchTag(tags []tagData, query string) string {
	for _, tag := range tags {
		for _, name := range tag.Attributes.Name {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if strings.Contains(name, query) || strings.Contains(query, name) {
				return tag.ID
			}
		}
	}
	return ""
}
