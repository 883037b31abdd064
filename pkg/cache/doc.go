// Package cache implements a similarity-aware, popularity-weighted cache
// for expensive analysis results with a Redis durable mirror.
//
// The cache sits in front of non-idempotent operations (LLM-backed query
// answering, financial-data lookups, ticker resolution) and decides under
// concurrent load whether a new request matches a past one, either exactly
// via a canonical key or semantically via embedding cosine similarity.
// Eviction blends access frequency and recency instead of pure LRU, so
// entries accessed in daily bursts are not starved out between bursts.
//
// # Basic Usage
//
//	// Create Redis client for the durable mirror
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create the manager with the three standard cache domains
//	manager, err := cache.NewManager(cache.DefaultConfig(cache.NewRedisStore(redisClient)))
//	if err != nil {
//		return err
//	}
//
//	// Exact-match lookup
//	result, err := manager.GetFinancial("AAPL", "llm_data")
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// compute the real result, then:
//		manager.PutFinancial(ctx, "AAPL", "llm_data", result)
//	}
//
//	// Similarity fallback for query results
//	result, err = manager.GetQuery("what moved the KLCI today", false, embedding, 0.9)
//
// # Serving vs. recovery
//
// The in-memory state is authoritative for serving. Every put mirrors the
// entry to the durable store (write-through, best-effort, outside the
// lock); the mirror exists only so Restore can repopulate memory after a
// restart. Entries absent from memory are never served from the mirror.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - semcache_hits_total{cache,kind} - hits by domain and kind (exact, similarity)
//   - semcache_misses_total{cache} - misses by domain
//   - semcache_evictions_total{cache} - capacity evictions by domain
//   - semcache_expired_total{cache} - age-based removals by domain
//   - semcache_entries{cache} - current entry count by domain
//   - semcache_store_errors_total{cache,operation} - durable mirror errors
package cache
