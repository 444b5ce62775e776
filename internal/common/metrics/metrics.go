// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total number of create-affiliate requests by mode and response status",
		},
		[]string{"mode", "status_code"},
	)

	ProxyRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "Duration of create-affiliate requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	ProxyRequestsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_requests_active",
			Help: "Number of create-affiliate requests in flight",
		},
	)

	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_calls_total",
			Help: "Total number of Tapfiliate API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	SubmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_outcomes_total",
			Help: "Signup submission outcomes by stage",
		},
		[]string{"stage", "status"},
	)

	OrphansReaped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orphans_reaped_total",
			Help: "Staged affiliates handled by the reaper, by action",
		},
		[]string{"action"},
	)
)
