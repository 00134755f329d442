package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// threadEventsTotal counts threads published on the unified change stream.
	threadEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentsync_thread_events_total",
		Help: "Threads published on the change stream by kind",
	}, []string{"kind"})

	// providerErrorsTotal counts failed calls to remote providers.
	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentsync_provider_errors_total",
		Help: "Failed comment provider calls by operation",
	}, []string{"operation"})

	fanoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commentsync_fanout_duration_seconds",
		Help:    "Registry fan-out duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation"})

	// syncRunsTotal counts syncer runs by result.
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentsync_sync_runs_total",
		Help: "Syncer runs by result",
	}, []string{"result"})

	registeredControllers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commentsync_controllers",
		Help: "Currently registered comment controllers",
	})
)
