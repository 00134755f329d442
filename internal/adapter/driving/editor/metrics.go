package editor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// liveViewports tracks viewports across every coordinator.
	liveViewports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commentsync_viewports",
		Help: "Thread viewports currently attached to editors",
	})

	// addRequestsTotal counts add-or-toggle requests by outcome.
	addRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentsync_add_requests_total",
		Help: "Add-or-toggle comment requests by outcome",
	}, []string{"outcome"})

	staleComputesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentsync_stale_computes_total",
		Help: "Comment fetches discarded because a newer fetch superseded them",
	})
)
