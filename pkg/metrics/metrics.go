package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_tile_requests_total",
		Help: "Total number of tile requests",
	})

	// ThrottleDecisions is labelled by verdict: allow, rate_limited, banned, forced_ban.
	ThrottleDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileproxy_throttle_decisions_total",
		Help: "Total number of throttle decisions by verdict",
	}, []string{"verdict"})

	ThrottleStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileproxy_throttle_store_errors_total",
		Help: "Total number of session store errors",
	}, []string{"operation"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_cache_hits_total",
		Help: "Total number of fresh cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_cache_misses_total",
		Help: "Total number of cache misses",
	})

	CacheStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_cache_stale_total",
		Help: "Total number of expired tiles refetched",
	})

	AccessDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_access_denied_total",
		Help: "Total number of requests rejected by the referer check",
	})

	UpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_upstream_requests_total",
		Help: "Total number of upstream tile requests",
	})

	UpstreamFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_upstream_failures_total",
		Help: "Total number of failed upstream tile requests",
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tileproxy_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	UpstreamBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_upstream_bytes_total",
		Help: "Total number of bytes fetched from upstream",
	})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_sessions_swept_total",
		Help: "Total number of idle sessions removed from the in-process store",
	})

	TempFilesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileproxy_temp_files_swept_total",
		Help: "Total number of abandoned partial tile downloads removed",
	})
)
