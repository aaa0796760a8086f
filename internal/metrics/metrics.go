// Package metrics exposes Prometheus collectors for the opinion crawler.
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
	sessionsTotal              *prometheus.CounterVec
	activeSessions             prometheus.Gauge
	articlesTotal              *prometheus.CounterVec
	translationsTotal          *prometheus.CounterVec
	imageDownloadsTotal        *prometheus.CounterVec
	imageBytesTotal            *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		sessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opinion_sessions_total",
				Help: "Browser sessions finished, labeled by target and status.",
			},
			[]string{"target", "status"},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "opinion_active_sessions",
				Help: "Number of browser sessions currently running.",
			},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opinion_articles_total",
				Help: "Articles processed, labeled by status (extracted, skipped).",
			},
			[]string{"status"},
		)

		translationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opinion_translations_total",
				Help: "Translation API calls, labeled by status.",
			},
			[]string{"status"},
		)

		imageDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opinion_image_downloads_total",
				Help: "Cover image downloads, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		imageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opinion_image_bytes_total",
				Help: "Bytes of cover images stored, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opinion_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"limiter"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opinion_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opinion_http_request_duration_seconds",
				Help:    "Histogram of metrics endpoint latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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
	Init()
	return promhttp.Handler()
}

// ObserveSession counts a finished session.
func ObserveSession(target, status string) {
	Init()
	sessionsTotal.WithLabelValues(target, status).Inc()
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}

// ObserveArticle counts an extracted or skipped article.
func ObserveArticle(status string) {
	Init()
	articlesTotal.WithLabelValues(status).Inc()
}

// ObserveTranslation counts a translation attempt.
func ObserveTranslation(status string) {
	Init()
	translationsTotal.WithLabelValues(status).Inc()
}

// ObserveImageDownload counts an image download and the bytes stored.
func ObserveImageDownload(imageURL, status string, bytesStored int64) {
	Init()
	site := SanitizeSite(imageURL)
	imageDownloadsTotal.WithLabelValues(site, status).Inc()
	if bytesStored > 0 {
		imageBytesTotal.WithLabelValues(site).Add(float64(bytesStored))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(limiter string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(limiter).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
