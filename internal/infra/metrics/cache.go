package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(cacheRequestsTotal)
}

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by resource and result (hit/miss).",
	},
	[]string{"resource", "result"},
)

func IncCacheRequest(resource, result string) {
	cacheRequestsTotal.WithLabelValues(resource, result).Inc()
}
