package cache

import (
	"encoding/json"
	"time"
)

// Entry is the stored cache unit: a canonical key, the opaque result
// payload, an optional embedding for similarity lookup, and the access
// statistics that drive popularity-weighted eviction.
type Entry struct {
	// CanonicalKey is the deterministic identity of this entry,
	// unique within one cache instance.
	CanonicalKey string `json:"canonical_key"`

	// Value is the cached result payload. Owned by the entry once
	// inserted; callers always receive a copy.
	Value json.RawMessage `json:"value"`

	// Embedding is the optional similarity vector supplied at put-time.
	// Never part of the entry's identity.
	Embedding []float64 `json:"embedding,omitempty"`

	// CreatedAt is when the key was first inserted (UTC).
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is updated on every hit and every put (UTC).
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// AccessCount increments on every hit (exact or similarity) and
	// every put.
	AccessCount int64 `json:"access_count"`

	// PopularityScore is the blended frequency/recency score,
	// recomputed on each access and persisted with the mirror so
	// eviction can rank without a full recomputation.
	PopularityScore float64 `json:"popularity_score"`
}

// touch records an access at the given instant and refreshes the
// popularity score.
func (e *Entry) touch(now time.Time, policy ScoringPolicy) {
	e.AccessCount++
	e.LastAccessedAt = now
	e.PopularityScore = policy.Score(e.AccessCount, e.LastAccessedAt, now)
}

// idleSince returns how long the entry has gone without an access.
func (e *Entry) idleSince(now time.Time) time.Duration {
	return now.Sub(e.LastAccessedAt)
}

// valueCopy returns a defensive copy of the payload so callers never
// hold a mutable alias into cache-internal state.
func (e *Entry) valueCopy() json.RawMessage {
	if e.Value == nil {
		return nil
	}
	out := make(json.RawMessage, len(e.Value))
	copy(out, e.Value)
	return out
}

// clone returns a deep copy of the entry for mirroring outside the lock.
func (e *Entry) clone() *Entry {
	c := *e
	c.Value = e.valueCopy()
	if e.Embedding != nil {
		c.Embedding = make([]float64, len(e.Embedding))
		copy(c.Embedding, e.Embedding)
	}
	return &c
}
