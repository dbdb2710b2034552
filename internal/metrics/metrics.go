// Package metrics holds the Prometheus collectors exposed at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OracleCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpem_oracle_call_duration_seconds",
			Help:    "Language model call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"provider", "outcome"},
	)

	DecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpem_decisions_total",
			Help: "Classification decisions produced, by action and commitment kind",
		},
		[]string{"action", "kind"},
	)

	QuotaDeniedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpem_quota_denied_total",
			Help: "Requests refused by the monthly usage gate",
		},
		[]string{"kind"},
	)

	PendingResolvedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpem_pending_resolved_total",
			Help: "Pending actions resolved, by outcome (confirmed, cancelled, superseded)",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpem_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordOracleCall(provider, outcome string, d time.Duration) {
	OracleCallLatency.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

func RecordDecision(action, kind string) {
	DecisionCount.WithLabelValues(action, kind).Inc()
}

func RecordQuotaDenied(kind string) {
	QuotaDeniedCount.WithLabelValues(kind).Inc()
}

func RecordPendingResolved(outcome string) {
	PendingResolvedCount.WithLabelValues(outcome).Inc()
}

func RecordHTTPRequest(method, path string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
