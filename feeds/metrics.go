package feeds

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "templefeed_feed_requests_total",
		Help: "Number of feed generations by mode",
	}, []string{"mode"})

	categoryFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "templefeed_category_fetch_failures_total",
		Help: "Number of failed category fetches",
	}, []string{"category"})

	categoryFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "templefeed_category_fetch_duration_seconds",
		Help:    "Duration of category fetches",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"category"})

	watcherBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "templefeed_watcher_broadcasts_total",
		Help: "Number of live events published by the watcher",
	})
)
