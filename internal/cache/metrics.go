package cache

import "github.com/prometheus/client_golang/prometheus"

// cacheLookups counts reads per cache by outcome ("hit" or "miss"). Cache
// backend failures count as misses since they take the store path.
var cacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_cache_lookups_total",
		Help: "Cache lookups by cache name and outcome.",
	},
	[]string{"cache", "outcome"},
)

func init() {
	prometheus.MustRegister(cacheLookups)
}
