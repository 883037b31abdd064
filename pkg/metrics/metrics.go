// Package metrics provides the centralized Prometheus metrics registry
// for the semantic cache. All metrics are defined in pkg/cache via
// promauto to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the cache.
// All metrics are automatically registered via promauto in pkg/cache.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - semcache_hits_total{cache, kind} (Counter): Hits by domain and kind (exact, similarity)
//   - semcache_misses_total{cache} (Counter): Misses by domain
//   - semcache_evictions_total{cache} (Counter): Capacity-triggered evictions
//   - semcache_expired_total{cache} (Counter): Entries removed by expiry sweeps
//   - semcache_entries{cache} (Gauge): Current entry count per domain
//   - semcache_store_errors_total{cache, operation} (Counter): Durable mirror errors by operation (put, delete, list)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(semcache_hits_total[5m])) /
//   (sum(rate(semcache_hits_total[5m])) + sum(rate(semcache_misses_total[5m])))
//
//   # Similarity Share of Hits
//   sum(rate(semcache_hits_total{kind="similarity"}[5m])) /
//   sum(rate(semcache_hits_total[5m]))
//
//   # Eviction Pressure
//   rate(semcache_evictions_total[5m])
//
//   # Mirror Error Rate
//   rate(semcache_store_errors_total[5m])
