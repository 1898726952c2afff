// Package metrics exposes Prometheus metrics for the fetch pipeline.
// Metrics are registered on the default registry; the main package
// decides whether to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "popsync_cycles_total",
			Help: "Total number of completed fetch cycles",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "popsync_cycle_duration_seconds",
			Help:    "Duration of a full fetch cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsync_messages_delivered_total",
			Help: "Messages fetched and delivered, per account",
		},
		[]string{"account"},
	)

	AccountErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsync_account_errors_total",
			Help: "Errors while fetching or delivering, per account",
		},
		[]string{"account"},
	)
)
