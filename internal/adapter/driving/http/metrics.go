package httphandler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "commentsync_http_request_duration_seconds",
	Help:    "HTTP request duration by route and status",
	Buckets: prometheus.DefBuckets,
}, []string{"route", "status"})
