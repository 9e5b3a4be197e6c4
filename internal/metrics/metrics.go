// Package metrics owns the Prometheus collectors for the API and the ledger.
package metrics

import (
	"regexp"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	httpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// kind is register/sanitize/recycle/transfer; outcome is committed,
	// replayed, invalid, reverted and so on.
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transitions_total",
			Help: "Total number of lifecycle transitions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	transitionsInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_transitions_inflight",
			Help: "Number of lifecycle transitions currently in flight",
		},
	)
	chainSubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chain_submit_duration_seconds",
			Help:    "Duration of chain gateway submissions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var (
	numericSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	evidenceRef    = regexp.MustCompile(`(/v1/evidence/)[^/]+$`)
)

// NormalizePath keeps label cardinality bounded: numeric path segments
// become {id} and evidence content refs become {ref}.
// E.g. /v1/assets/123 -> /v1/assets/{id}, /v1/evidence/bafy123 -> /v1/evidence/{ref}.
func NormalizePath(path string) string {
	path = evidenceRef.ReplaceAllString(path, "${1}{ref}")
	return numericSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest observes one served HTTP request.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	status := strconv.Itoa(statusCode)
	path = NormalizePath(path)
	httpDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	httpTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTransition counts one lifecycle transition attempt.
func RecordTransition(kind, outcome string) {
	transitionsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncTransitionInflight marks a transition as started.
func IncTransitionInflight() { transitionsInflight.Inc() }

// DecTransitionInflight marks a transition as finished.
func DecTransitionInflight() { transitionsInflight.Dec() }

// ObserveChainSubmit records one authorize+submit round trip to the gateway.
func ObserveChainSubmit(durationSeconds float64) {
	chainSubmitDuration.Observe(durationSeconds)
}
