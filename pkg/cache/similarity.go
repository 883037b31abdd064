package cache

import "math"

// Match is the result of a similarity lookup.
type Match struct {
	// CanonicalKey of the best-matching entry.
	CanonicalKey string

	// Score is the cosine similarity with the query vector.
	Score float64
}

// SimilarityIndex finds the best-matching embedding-bearing entry for a
// query vector. Implementations must return a match only when its score
// is at or above the threshold, preferring higher popularity and then
// more recent access among entries with equal scores. An
// approximate-nearest-neighbor index may substitute for the linear scan
// at larger deployments behind this same contract.
type SimilarityIndex interface {
	BestMatch(query []float64, threshold float64, entries map[string]*Entry) (Match, bool)
}

// LinearIndex scans all embedding-bearing entries. Linear time in the
// number of such entries, which is the right trade at the target sizes
// of hundreds to low thousands.
type LinearIndex struct{}

// BestMatch implements SimilarityIndex.
func (LinearIndex) BestMatch(query []float64, threshold float64, entries map[string]*Entry) (Match, bool) {
	var (
		best      *Entry
		bestScore float64
		found     bool
	)

	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		score, ok := cosineSimilarity(query, e.Embedding)
		if !ok || score < threshold {
			continue
		}
		if !found || score > bestScore || (score == bestScore && preferOnTie(e, best)) {
			best = e
			bestScore = score
			found = true
		}
	}

	if !found {
		return Match{}, false
	}
	return Match{CanonicalKey: best.CanonicalKey, Score: bestScore}, true
}

// preferOnTie reports whether a wins a score tie against b: higher
// popularity first, then the more recently accessed.
func preferOnTie(a, b *Entry) bool {
	if a.PopularityScore != b.PopularityScore {
		return a.PopularityScore > b.PopularityScore
	}
	return a.LastAccessedAt.After(b.LastAccessedAt)
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// Returns ok=false for mismatched lengths or zero-magnitude vectors.
func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
