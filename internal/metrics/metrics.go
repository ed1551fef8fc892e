// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docvault_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status code",
		},
		[]string{"method", "path", "code"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docvault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Search metrics
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docvault_search_duration_seconds",
			Help:    "Search query duration in seconds by backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Ingest metrics
	IngestBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docvault_ingest_backlog",
			Help: "Number of ingest jobs by state",
		},
		[]string{"state"},
	)

	IngestOldestPendingSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docvault_ingest_oldest_pending_seconds",
			Help: "Age of the oldest job still waiting in RECEIVED",
		},
	)

	IngestSuccessRatio1h = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docvault_ingest_success_ratio_1h",
			Help: "Share of jobs finishing in PUBLISHED or NEEDS_REVIEW over the last hour; 1 when no job finished",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(IngestBacklog)
	prometheus.MustRegister(IngestOldestPendingSeconds)
	prometheus.MustRegister(IngestSuccessRatio1h)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// allStates keeps stale gauges from lingering after a state empties.
var allStates = []models.IngestState{
	models.StateReceived, models.StateStored, models.StateExtracted,
	models.StateClassified, models.StateIndexed, models.StatePublished,
	models.StateNeedsReview, models.StateFailed,
}

// RefreshIngestGauges recomputes the backlog gauges from the database.
// Called periodically by the server.
func RefreshIngestGauges(db *gorm.DB) error {
	counts, err := models.CountJobsByState(db)
	if err != nil {
		return err
	}
	for _, state := range allStates {
		IngestBacklog.WithLabelValues(string(state)).Set(float64(counts[state]))
	}

	oldest, err := models.OldestPendingReceivedAt(db)
	if err != nil {
		return err
	}
	if oldest == nil {
		IngestOldestPendingSeconds.Set(0)
	} else {
		IngestOldestPendingSeconds.Set(time.Since(*oldest).Seconds())
	}

	success, failure, err := models.TerminalOutcomesSince(db, time.Now().Add(-time.Hour))
	if err != nil {
		return err
	}
	if total := success + failure; total > 0 {
		IngestSuccessRatio1h.Set(float64(success) / float64(total))
	} else {
		IngestSuccessRatio1h.Set(1)
	}
	return nil
}
