// Package metrics provides Prometheus metrics for the filing harvester.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the harvester.
type Metrics struct {
	// Company metrics
	CompaniesProcessed prometheus.Counter
	CompaniesFailed    *prometheus.CounterVec

	// Report metrics
	ReportsFound prometheus.Counter

	// Download metrics
	Downloads        *prometheus.CounterVec
	DownloadFailures *prometheus.CounterVec
	MisnamedPDFs     prometheus.Counter
	RetryAttempts    prometheus.Counter
	RetryRecovered   prometheus.Counter

	// Timing metrics
	DownloadDuration prometheus.Histogram
	PageLoadDuration prometheus.Histogram

	// Size metrics
	DocumentBytes prometheus.Histogram
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "filing_harvester"
	}

	m := &Metrics{
		CompaniesProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "companies_processed_total",
				Help:      "Total number of companies processed",
			},
		),
		CompaniesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "companies_failed_total",
				Help:      "Total number of companies whose filings page never loaded",
			},
			[]string{"reason"},
		),
		ReportsFound: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_found_total",
				Help:      "Total number of annual report descriptors extracted",
			},
		),
		Downloads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Total number of download cycles by terminal status",
			},
			[]string{"status"},
		),
		DownloadFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_failures_total",
				Help:      "Total number of failed download cycles by reason",
			},
			[]string{"reason"},
		),
		MisnamedPDFs: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "misnamed_pdfs_total",
				Help:      "Total number of archive-labeled payloads saved as raw PDFs",
			},
		),
		RetryAttempts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of ledgered downloads re-attempted",
			},
		),
		RetryRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_recovered_total",
				Help:      "Total number of ledgered downloads recovered on retry",
			},
		),
		DownloadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Wall time of one full download cycle",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
		),
		PageLoadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_load_duration_seconds",
				Help:      "Wall time to load and validate one filings page",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~500s
			},
		),
		DocumentBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_bytes",
				Help:      "Size of persisted documents in bytes",
				Buckets:   prometheus.ExponentialBuckets(10240, 2, 12), // 10KB to ~40MB
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncDownload increments the download counter for a terminal status.
func (m *Metrics) IncDownload(status string) {
	m.Downloads.WithLabelValues(status).Inc()
}

// IncDownloadFailure increments the failure counter for a reason.
func (m *Metrics) IncDownloadFailure(reason string) {
	m.DownloadFailures.WithLabelValues(reason).Inc()
}

// IncCompanyFailed increments the failed-company counter for a reason.
func (m *Metrics) IncCompanyFailed(reason string) {
	m.CompaniesFailed.WithLabelValues(reason).Inc()
}

// ObserveDownloadDuration records the wall time of one download cycle.
func (m *Metrics) ObserveDownloadDuration(d time.Duration) {
	m.DownloadDuration.Observe(d.Seconds())
}

// ObservePageLoadDuration records the wall time of one page load.
func (m *Metrics) ObservePageLoadDuration(d time.Duration) {
	m.PageLoadDuration.Observe(d.Seconds())
}

// ObserveDocumentBytes records the size of a persisted document.
func (m *Metrics) ObserveDocumentBytes(bytes int64) {
	m.DocumentBytes.Observe(float64(bytes))
}
