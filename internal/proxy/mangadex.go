package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/metrics"
)

// MangaDex forwards GET /proxy/mangadex?path=... to the MangaDex API.
func (h *Handler) MangaDex(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	apiPath := strings.Trim(query.Get("path"), "/")
	if apiPath == "" {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}
	if strings.Contains(apiPath, "..") || strings.Contains(apiPath, "://") {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	target := h.cfg.MangaDexBaseURL + "/" + apiPath
	if forwarded := forwardQuery(query); len(forwarded) > 0 {
		target += "?" + forwarded.Encode()
	}
	if !h.allow(w, target) {
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("mangadex proxy failed", zap.String("url", target), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch from MangaDex API")
		return
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, h.cfg.MaxBytes))
	metrics.ObserveUpstream(target, res.StatusCode, len(body))
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to read MangaDex response")
		return
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		writeJSON(w, res.StatusCode, map[string]any{
			"error":  fmt.Sprintf("MangaDex API error: %s", http.StatusText(res.StatusCode)),
			"status": res.StatusCode,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// forwardQuery copies every parameter but path. Keys repeated in the request
// are sent as array parameters (key[]).
func forwardQuery(query url.Values) url.Values {
	out := url.Values{}
	for key, values := range query {
		if key == "path" {
			continue
		}
		name := key
		if len(values) > 1 && !strings.HasSuffix(key, "[]") {
			name = key + "[]"
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			out.Add(name, v)
		}
	}
	return out
}
