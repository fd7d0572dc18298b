package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/youread/internal/fetcher/colly"
)

var allowedHosts = []string{"manganato.gg", "manganato.com"}

// MangaNato relays GET /proxy/manganato?url=... as HTML.
func (h *Handler) MangaNato(w http.ResponseWriter, r *http.Request) {
	target, ok := targetURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}
	if !isMangaNato(target) {
		writeError(w, http.StatusBadRequest, "invalid url: only MangaNato urls are allowed")
		return
	}
	if h.pages == nil {
		writeError(w, http.StatusServiceUnavailable, "page proxy disabled")
		return
	}
	if !h.allow(w, target) {
		return
	}

	resp, err := h.pages.Fetch(r.Context(), collyfetcher.Request{
		URL: target,
		Headers: http.Header{
			"User-Agent":      {h.cfg.UserAgent},
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
			"Referer":         {h.cfg.Referer},
		},
	})
	if err != nil {
		h.logger.Warn("manganato proxy failed", zap.String("url", target), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch content")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, resp.StatusCode, fmt.Sprintf("failed to fetch: %s", http.StatusText(resp.StatusCode)))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

// targetURL reads the url parameter, undoing one extra level of encoding
// when the client double-encoded it.
func targetURL(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(raw), "http%3a") || strings.HasPrefix(strings.ToLower(raw), "https%3a") {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			raw = decoded
		}
	}
	return raw, true
}

func isMangaNato(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
