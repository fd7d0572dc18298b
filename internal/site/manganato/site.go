// Package manganato holds the MangaNato scraping rules: listing detection,
// pagination, and record extraction from bookmark, history, search and
// detail pages.
package manganato

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/crawler"
)

// DefaultBaseURL is the site root used to absolutize links.
const DefaultBaseURL = "https://www.manganato.gg"

const nextLinkSelector = `a[href*="page="], .page-next a, .pagination a:last-child`

// Site implements crawler.Site for MangaNato.
type Site struct {
	base     string
	baseHost string
	logger   *zap.Logger
}

var _ crawler.Site = (*Site)(nil)

// New returns a Site rooted at baseURL (DefaultBaseURL when empty).
func New(baseURL string, logger *zap.Logger) *Site {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	host := ""
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Hostname()
	}
	return &Site{base: baseURL, baseHost: host, logger: logger}
}

// BaseURL returns the site root.
func (s *Site) BaseURL() string {
	return s.base
}

// IsSiteURL reports whether raw points at MangaNato (or the configured root).
func (s *Site) IsSiteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return strings.Contains(host, "manganato") || (s.baseHost != "" && host == s.baseHost)
}

// IsListing reports whether raw is a bookmark or history listing.
func (s *Site) IsListing(raw string) bool {
	if !s.IsSiteURL(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "/bookmark") || strings.Contains(u.Path, "/history")
}

// PageNumber returns the page query parameter, defaulting to 1.
func (s *Site) PageNumber(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// NextPageURL increments the page query parameter of the current URL. A next
// link in the document is looked up and logged but does not decide the
// result: an empty page past the end is caught by the crawler's convergence
// check.
func (s *Site) NextPageURL(page crawler.Page) (string, bool) {
	u, err := url.Parse(page.URL)
	if err != nil || u.Host == "" {
		return "", false
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(s.PageNumber(page.URL)+1))
	u.RawQuery = q.Encode()
	next := u.String()

	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug("next page computed",
			zap.String("url", next),
			zap.Bool("link_present", s.hasNextLink(page.HTML)),
		)
	}
	return next, true
}

func (s *Site) hasNextLink(html string) bool {
	if html == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(nextLinkSelector).Length() > 0
}
