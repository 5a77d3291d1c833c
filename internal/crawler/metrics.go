package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pagesFetched tracks pages successfully fetched and extracted.
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_fetched_total",
		Help: "The total number of pages successfully fetched and extracted.",
	})
	// fetchFailures tracks navigation errors; the URL is skipped and the
	// session continues.
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_fetch_failures_total",
		Help: "The total number of page fetches that failed and were skipped.",
	})
	// frontierDrops tracks tasks rejected because the pending cap was hit.
	frontierDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_frontier_drops_total",
		Help: "The total number of frontier tasks dropped at the pending cap.",
	})
	// sessionDuration observes wall time per crawl session.
	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_session_duration_seconds",
		Help:    "Wall-clock duration of crawl sessions.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
