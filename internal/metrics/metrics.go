// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequestsTotal      *prometheus.CounterVec
	upstreamBytesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	importJobsTotal            *prometheus.CounterVec
	importActiveWorkers        prometheus.Gauge
	libraryImportRecordsTotal  *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	rateLimitRejectionsTotal   *prometheus.CounterVec
	imageCacheTotal            *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "youread_upstream_requests_total",
				Help: "Requests to catalogs and proxied sites, labeled by host and status code.",
			},
			[]string{"host", "code"},
		)

		upstreamBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "youread_upstream_bytes_total",
				Help: "Bytes read from upstream hosts.",
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		importJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "youread_import_jobs_total",
				Help: "Import jobs finished, labeled by final state.",
			},
			[]string{"state"},
		)

		importActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "youread_import_active_workers",
				Help: "Workers currently running an import job.",
			},
		)

		libraryImportRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "youread_library_import_records_total",
				Help: "Records applied to the library by imports, labeled by outcome.",
			},
			[]string{"result"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "youread_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		rateLimitRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "youread_rate_limit_rejections_total",
				Help: "Proxy requests rejected by the rate limiter.",
			},
			[]string{"host"},
		)

		imageCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "youread_image_cache_total",
				Help: "Image proxy cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream counts one upstream response.
func ObserveUpstream(rawURL string, code int, bytesRead int) {
	Init()
	host := SanitizeSite(rawURL)
	upstreamRequestsTotal.WithLabelValues(host, strconv.Itoa(code)).Inc()
	if bytesRead > 0 {
		upstreamBytesTotal.WithLabelValues(host).Add(float64(bytesRead))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveImportJob counts a finished import job.
func ObserveImportJob(state string) {
	Init()
	importJobsTotal.WithLabelValues(state).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	importActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	importActiveWorkers.Dec()
}

// ObserveLibraryImport counts the outcome of one applied batch.
func ObserveLibraryImport(added, updated, unchanged int) {
	Init()
	libraryImportRecordsTotal.WithLabelValues("added").Add(float64(added))
	libraryImportRecordsTotal.WithLabelValues("updated").Add(float64(updated))
	libraryImportRecordsTotal.WithLabelValues("unchanged").Add(float64(unchanged))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveRateLimitRejection counts a request refused by the limiter.
func ObserveRateLimitRejection(host string) {
	Init()
	rateLimitRejectionsTotal.WithLabelValues(host).Inc()
}

// ObserveImageCache counts an image cache lookup.
func ObserveImageCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	imageCacheTotal.WithLabelValues(result).Inc()
}
