package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks hits by cache domain and kind (exact, similarity)
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache", "kind"}, // kind: "exact", "similarity"
	)

	// cacheMisses tracks misses by cache domain
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// cacheEvictions tracks capacity-triggered removals
	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_evictions_total",
			Help: "Total number of capacity-triggered evictions",
		},
		[]string{"cache"},
	)

	// cacheExpired tracks age-triggered removals from expiry sweeps
	cacheExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_expired_total",
			Help: "Total number of entries removed by expiry sweeps",
		},
		[]string{"cache"},
	)

	// cacheEntries tracks the current entry count per cache domain
	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "semcache_entries",
			Help: "Current number of entries per cache",
		},
		[]string{"cache"},
	)

	// storeErrors tracks durable mirror operation errors
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_store_errors_total",
			Help: "Total number of durable store mirror errors",
		},
		[]string{"cache", "operation"}, // "put", "get", "delete", "list"
	)
)
