package cache

import (
	"fmt"
	"math"
	"time"
)

// ScoringPolicy computes the popularity score that ranks entries for
// eviction. The score blends normalized access frequency with an
// exponential recency decay:
//
//	score = FrequencyWeight * count/(count+SaturationCount)
//	      + RecencyWeight * 0.5^(idle/HalfLife)
//
// Pure LRU starves entries that are accessed in daily bursts (a popular
// ticker queried every morning) if the burst ends just before eviction
// runs; the frequency term keeps those alive while the recency term
// still favors fresh entries over stale ones with equal counts.
type ScoringPolicy struct {
	// FrequencyWeight and RecencyWeight must sum to 1.
	FrequencyWeight float64
	RecencyWeight   float64

	// HalfLife is the idle duration after which the recency term halves.
	HalfLife time.Duration

	// SaturationCount controls how quickly the frequency term
	// approaches 1: an entry with SaturationCount accesses scores 0.5
	// on frequency.
	SaturationCount float64
}

// DefaultScoringPolicy returns the tuning used in production. These are
// configuration defaults, not correctness constraints.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		FrequencyWeight: 0.6,
		RecencyWeight:   0.4,
		HalfLife:        7 * 24 * time.Hour,
		SaturationCount: 10,
	}
}

// Validate checks the policy is usable.
func (p ScoringPolicy) Validate() error {
	if math.Abs(p.FrequencyWeight+p.RecencyWeight-1) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1 (got %g + %g)",
			p.FrequencyWeight, p.RecencyWeight)
	}
	if p.FrequencyWeight < 0 || p.RecencyWeight < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if p.HalfLife <= 0 {
		return fmt.Errorf("half-life must be positive (got %v)", p.HalfLife)
	}
	if p.SaturationCount <= 0 {
		return fmt.Errorf("saturation count must be positive (got %g)", p.SaturationCount)
	}
	return nil
}

// Score computes the popularity score for an entry with the given access
// count and last-access time, as observed at now. The result is in [0, 1).
func (p ScoringPolicy) Score(accessCount int64, lastAccess, now time.Time) float64 {
	freq := float64(accessCount) / (float64(accessCount) + p.SaturationCount)

	idle := now.Sub(lastAccess)
	if idle < 0 {
		idle = 0
	}
	recency := math.Exp2(-idle.Seconds() / p.HalfLife.Seconds())

	return p.FrequencyWeight*freq + p.RecencyWeight*recency
}

// lessEvictable reports whether a should be evicted before b: lower
// popularity first, ties broken by the older last access.
func lessEvictable(a, b *Entry) bool {
	if a.PopularityScore != b.PopularityScore {
		return a.PopularityScore < b.PopularityScore
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}
