// Package metrics exposes Prometheus collectors for the site auditor.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector owned by the auditor. It is kept separate from
// the default registry so a run only exports its own series.
var Registry = prometheus.NewRegistry()

var (
	checksTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_checks_total",
			Help: "Total number of check invocations, labeled by check and status.",
		},
		[]string{"check", "status"},
	)

	checkDurationSeconds = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siteaudit_check_duration_seconds",
			Help:    "Histogram of check durations, labeled by check.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"check"},
	)

	fetchTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_fetch_total",
			Help: "Total number of HTTP fetches, labeled by method and status class.",
		},
		[]string{"method", "class"},
	)

	fetchDurationSeconds = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siteaudit_fetch_duration_seconds",
			Help:    "Histogram of HTTP fetch latencies, labeled by method.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method"},
	)

	fetchRetriesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_fetch_retries_total",
			Help: "Total number of fetch retries, labeled by reason.",
		},
		[]string{"reason"},
	)

	sitemapDocumentsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_sitemap_documents_total",
			Help: "Total number of sitemap documents processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	pacingDelaySeconds = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siteaudit_pacing_delay_seconds",
			Help:    "Histogram of per-host pacing waits.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"host"},
	)
)

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

// StatusClass groups an HTTP status code into 2xx/3xx/4xx/5xx buckets.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// ObserveCheck records one check invocation.
func ObserveCheck(name, status string, duration time.Duration) {
	checksTotal.WithLabelValues(name, status).Inc()
	checkDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveFetch records a completed fetch. A zero code means the transport failed.
func ObserveFetch(method string, code int, duration time.Duration) {
	class := "error"
	if code > 0 {
		class = StatusClass(code)
	}
	fetchTotal.WithLabelValues(method, class).Inc()
	fetchDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for the given reason.
func ObserveRetry(reason string) {
	fetchRetriesTotal.WithLabelValues(reason).Inc()
}

// ObserveSitemapDocument counts a sitemap document by outcome (urlset, index, error).
func ObserveSitemapDocument(outcome string) {
	sitemapDocumentsTotal.WithLabelValues(outcome).Inc()
}

// ObservePacingDelay records the duration of a per-host pacing wait.
func ObservePacingDelay(host string, duration time.Duration) {
	pacingDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// WriteTextfile dumps every collector in Registry to path using the
// node_exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
