package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Cache is one bounded, similarity-aware cache instance. The in-memory
// map is the source of truth for serving; every write is mirrored to the
// durable store outside the critical section for recovery after restart.
type Cache struct {
	name    string
	maxSize int
	policy  ScoringPolicy
	index   SimilarityIndex
	store   Store
	clock   Clock
	logger  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	// size is tracked alongside the map so the capacity invariant
	// (tracked size == actual size) stays checkable.
	size int

	exactHits      atomic.Int64
	similarityHits atomic.Int64
	misses         atomic.Int64
	requests       atomic.Int64
	evictions      atomic.Int64
	expired        atomic.Int64

	health healthState
}

func newCache(name string, cfg Config, logger zerolog.Logger) *Cache {
	return &Cache{
		name:    name,
		maxSize: cfg.MaxSize,
		policy:  cfg.Scoring,
		index:   cfg.Index,
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  logger.With().Str("cache", name).Logger(),
		entries: make(map[string]*Entry),
	}
}

// Name returns the cache domain name.
func (c *Cache) Name() string { return c.name }

// Size returns the current entry count.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxSize returns the capacity bound.
func (c *Cache) MaxSize() int { return c.maxSize }

// Get looks up a value by canonical key, falling back to cosine
// similarity when an embedding is supplied and no exact match exists.
// The threshold must be in (0,1] whenever an embedding is supplied.
// Both hit paths update the entry's access statistics; a miss still
// counts toward the request and miss counters.
func (c *Cache) Get(key Key, embedding []float64, threshold float64) (json.RawMessage, error) {
	if err := key.Validate(); err != nil {
		return nil, callerError(c.name, "get", err)
	}
	if len(embedding) > 0 && (threshold <= 0 || threshold > 1) {
		return nil, callerError(c.name, "get",
			fmt.Errorf("%w: got %g", ErrInvalidThreshold, threshold))
	}

	canonical := key.String()
	now := c.clock.Now()
	c.requests.Add(1)

	c.mu.Lock()

	// Exact match never consults embeddings.
	if e, ok := c.entries[canonical]; ok {
		e.touch(now, c.policy)
		value := e.valueCopy()
		c.mu.Unlock()

		c.exactHits.Add(1)
		cacheHits.WithLabelValues(c.name, "exact").Inc()
		c.logger.Debug().Str("key", canonical).Msg("Exact cache hit")
		return value, nil
	}

	if len(embedding) > 0 {
		if match, ok := c.index.BestMatch(embedding, threshold, c.entries); ok {
			e := c.entries[match.CanonicalKey]
			e.touch(now, c.policy)
			value := e.valueCopy()
			c.mu.Unlock()

			c.similarityHits.Add(1)
			cacheHits.WithLabelValues(c.name, "similarity").Inc()
			c.logger.Debug().
				Str("key", canonical).
				Str("matched_key", match.CanonicalKey).
				Float64("score", match.Score).
				Msg("Similarity cache hit")
			return value, nil
		}
	}

	c.mu.Unlock()
	c.misses.Add(1)
	cacheMisses.WithLabelValues(c.name).Inc()
	return nil, ErrCacheMiss
}

// Put inserts or replaces the value for a key. A put to an existing key
// replaces value and embedding, bumps the access count and preserves
// CreatedAt. The entry is mirrored to the durable store after the
// critical section; mirror failure is logged and counted toward
// degraded health but never fails the put. If the instance exceeds
// capacity, the lowest-popularity entries are evicted before returning.
func (c *Cache) Put(ctx context.Context, key Key, value json.RawMessage, embedding []float64) error {
	if err := key.Validate(); err != nil {
		return callerError(c.name, "put", err)
	}
	if c.health.isFailed() {
		return capacityError(c.name, "put", ErrInstanceFailed)
	}

	canonical := key.String()
	now := c.clock.Now()

	// Copy caller-owned slices so the entry has exclusive ownership.
	storedValue := make(json.RawMessage, len(value))
	copy(storedValue, value)
	var storedEmbedding []float64
	if len(embedding) > 0 {
		storedEmbedding = make([]float64, len(embedding))
		copy(storedEmbedding, embedding)
	}

	c.mu.Lock()

	e, exists := c.entries[canonical]
	if exists {
		e.Value = storedValue
		e.Embedding = storedEmbedding
		e.touch(now, c.policy)
	} else {
		e = &Entry{
			CanonicalKey:   canonical,
			Value:          storedValue,
			Embedding:      storedEmbedding,
			CreatedAt:      now,
			LastAccessedAt: now,
			AccessCount:    1,
		}
		e.PopularityScore = c.policy.Score(e.AccessCount, e.LastAccessedAt, now)
		c.entries[canonical] = e
		c.size++
	}

	if c.size != len(c.entries) {
		c.health.markFailed()
		tracked, actual := c.size, len(c.entries)
		c.mu.Unlock()
		c.logger.Error().
			Int("tracked_size", tracked).
			Int("actual_size", actual).
			Msg("Capacity invariant violated - instance failed, refusing writes")
		return capacityError(c.name, "put",
			fmt.Errorf("%w: tracked size %d != actual size %d", ErrInstanceFailed, tracked, actual))
	}

	evicted := c.evictLocked(c.maxSize)
	mirror := e.clone()
	cacheEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))

	c.mu.Unlock()

	// Write-through mirror, dispatched after releasing the lock.
	c.mirrorPut(ctx, mirror)
	c.mirrorDelete(ctx, evicted)

	return nil
}

// evictLocked removes lowest-popularity entries until size <= target.
// Ties go to the oldest last access. Returns the evicted canonical keys.
// Caller must hold c.mu.
func (c *Cache) evictLocked(target int) []string {
	var evicted []string
	for len(c.entries) > target {
		var victim *Entry
		for _, e := range c.entries {
			if victim == nil || lessEvictable(e, victim) {
				victim = e
			}
		}
		delete(c.entries, victim.CanonicalKey)
		c.size--
		evicted = append(evicted, victim.CanonicalKey)

		c.evictions.Add(1)
		cacheEvictions.WithLabelValues(c.name).Inc()
		c.logger.Debug().
			Str("key", victim.CanonicalKey).
			Float64("popularity", victim.PopularityScore).
			Msg("Evicted entry")
	}
	return evicted
}

// Shrink evicts down to the given target size, used by Optimize to
// evict early before the hard capacity bound forces it. Returns the
// number of entries removed.
func (c *Cache) Shrink(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}

	c.mu.Lock()
	evicted := c.evictLocked(target)
	cacheEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
	c.mu.Unlock()

	c.mirrorDelete(ctx, evicted)
	return len(evicted)
}

// ClearExpired removes every entry idle longer than maxAge, regardless
// of popularity and even when the instance is far under capacity.
// Returns the number of entries removed.
func (c *Cache) ClearExpired(ctx context.Context, maxAge time.Duration) int {
	now := c.clock.Now()

	c.mu.Lock()
	var removed []string
	for key, e := range c.entries {
		if e.idleSince(now) > maxAge {
			delete(c.entries, key)
			c.size--
			removed = append(removed, key)

			c.expired.Add(1)
			cacheExpired.WithLabelValues(c.name).Inc()
		}
	}
	cacheEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
	c.mu.Unlock()

	if len(removed) > 0 {
		c.logger.Info().
			Int("removed", len(removed)).
			Dur("max_age", maxAge).
			Msg("Expiry sweep removed stale entries")
	}
	c.mirrorDelete(ctx, removed)
	return len(removed)
}

// Remove deletes the entry for a key, if present. Used by the health
// check to clean up probe entries.
func (c *Cache) Remove(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return callerError(c.name, "remove", err)
	}

	canonical := key.String()

	c.mu.Lock()
	if _, ok := c.entries[canonical]; ok {
		delete(c.entries, canonical)
		c.size--
		cacheEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
	}
	c.mu.Unlock()

	c.mirrorDelete(ctx, []string{canonical})
	return nil
}

// Restore loads mirrored entries from the durable store into memory.
// Intended for startup only; afterwards memory is authoritative and the
// mirror is never read on the serving path. Entries beyond capacity are
// evicted by popularity as usual.
func (c *Cache) Restore(ctx context.Context) error {
	stored, err := c.store.List(ctx, c.name)
	if err != nil {
		storeErrors.WithLabelValues(c.name, "list").Inc()
		return fmt.Errorf("restore cache %s: %w", c.name, err)
	}

	c.mu.Lock()
	for _, e := range stored {
		if e.CanonicalKey == "" {
			continue
		}
		if _, ok := c.entries[e.CanonicalKey]; ok {
			continue
		}
		c.entries[e.CanonicalKey] = e
		c.size++
	}
	evicted := c.evictLocked(c.maxSize)
	restored := len(c.entries)
	cacheEntries.WithLabelValues(c.name).Set(float64(restored))
	c.mu.Unlock()

	c.logger.Info().
		Int("restored", restored).
		Int("trimmed", len(evicted)).
		Msg("Restored cache from durable store")
	c.mirrorDelete(ctx, evicted)
	return nil
}

// mirrorPut writes one entry through to the durable store. Failures are
// non-fatal: logged, counted, and fed into the degraded-health counter.
// There is no background retry; the next put to the same key mirrors again.
func (c *Cache) mirrorPut(ctx context.Context, e *Entry) {
	if err := c.store.Put(ctx, c.name, e); err != nil {
		failures := c.health.recordMirrorFailure()
		storeErrors.WithLabelValues(c.name, "put").Inc()

		evt := c.logger.Warn()
		if failures == DegradedMirrorFailures {
			evt = c.logger.Error()
		}
		evt.Err(err).
			Str("key", e.CanonicalKey).
			Int64("consecutive_failures", failures).
			Msg("Durable mirror write failed")
		return
	}
	c.health.recordMirrorSuccess()
}

// mirrorDelete removes mirrored copies best-effort.
func (c *Cache) mirrorDelete(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := c.store.Delete(ctx, c.name, key); err != nil {
			storeErrors.WithLabelValues(c.name, "delete").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("Durable mirror delete failed")
		}
	}
}

// MetricsSnapshot is a point-in-time view of one instance's counters.
type MetricsSnapshot struct {
	Hits           int64   `json:"hits"`
	ExactHits      int64   `json:"exact_hits"`
	SimilarityHits int64   `json:"similarity_hits"`
	Misses         int64   `json:"misses"`
	Requests       int64   `json:"total_requests"`
	Evictions      int64   `json:"evictions"`
	Expired        int64   `json:"expired"`
	Size           int     `json:"cache_size"`
	MaxSize        int     `json:"max_size"`
	HitRate        float64 `json:"hit_rate"`
}

// Metrics returns a snapshot of the instance counters.
func (c *Cache) Metrics() MetricsSnapshot {
	exact := c.exactHits.Load()
	sim := c.similarityHits.Load()
	requests := c.requests.Load()

	snap := MetricsSnapshot{
		Hits:           exact + sim,
		ExactHits:      exact,
		SimilarityHits: sim,
		Misses:         c.misses.Load(),
		Requests:       requests,
		Evictions:      c.evictions.Load(),
		Expired:        c.expired.Load(),
		Size:           c.Size(),
		MaxSize:        c.maxSize,
	}
	snap.HitRate = float64(snap.Hits) / float64(max(int64(1), requests))
	return snap
}

// EntrySummary describes one entry in an analytics report.
type EntrySummary struct {
	CanonicalKey    string  `json:"canonical_key"`
	AccessCount     int64   `json:"access_count"`
	PopularityScore float64 `json:"popularity_score"`
}

// AnalyticsSnapshot summarizes trend and efficiency data for one instance.
type AnalyticsSnapshot struct {
	FillRatio      float64        `json:"fill_ratio"`
	HitRate        float64        `json:"hit_rate"`
	AvgAgeSeconds  float64        `json:"avg_entry_age_seconds"`
	AvgIdleSeconds float64        `json:"avg_idle_seconds"`
	TopEntries     []EntrySummary `json:"top_entries"`
}

// analyticsTopN is how many entries an analytics snapshot lists.
const analyticsTopN = 5

// Analytics returns efficiency and trend data for the instance.
func (c *Cache) Analytics() AnalyticsSnapshot {
	now := c.clock.Now()

	c.mu.Lock()
	summaries := make([]EntrySummary, 0, len(c.entries))
	var totalAge, totalIdle float64
	for _, e := range c.entries {
		summaries = append(summaries, EntrySummary{
			CanonicalKey:    e.CanonicalKey,
			AccessCount:     e.AccessCount,
			PopularityScore: c.policy.Score(e.AccessCount, e.LastAccessedAt, now),
		})
		totalAge += now.Sub(e.CreatedAt).Seconds()
		totalIdle += e.idleSince(now).Seconds()
	}
	size := len(c.entries)
	c.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].PopularityScore > summaries[j].PopularityScore
	})
	if len(summaries) > analyticsTopN {
		summaries = summaries[:analyticsTopN]
	}

	snap := AnalyticsSnapshot{
		FillRatio:  float64(size) / float64(c.maxSize),
		HitRate:    c.Metrics().HitRate,
		TopEntries: summaries,
	}
	if size > 0 {
		snap.AvgAgeSeconds = totalAge / float64(size)
		snap.AvgIdleSeconds = totalIdle / float64(size)
	}
	return snap
}
