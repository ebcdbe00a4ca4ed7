package search

import (
	"math"
	"time"

	"github.com/engramhq/engram/pkg/memory"
)

// Weights controls how the relevance score blends its components.
// The components are each in [0, 1], so with normalized weights the final
// relevance is too.
type Weights struct {
	Similarity float64
	Recency    float64
	Complexity float64
}

// DefaultWeights is the standard relevance blend.
var DefaultWeights = Weights{
	Similarity: 0.6,
	Recency:    0.25,
	Complexity: 0.15,
}

// recencyHalfLifeDays sets how fast a record's recency component decays.
const recencyHalfLifeDays = 90.0

// recencyScore decays exponentially with record age.
func recencyScore(r *memory.Record, now time.Time) float64 {
	age := r.AgeDays(now)
	if age < 0 {
		age = 0
	}
	return math.Exp(-float64(age) / recencyHalfLifeDays)
}

// complexityScore compares the record's complexity to the preferred one.
// No preference treats every record equally; adjacent levels get partial
// credit.
func complexityScore(r *memory.Record, preferred memory.Complexity) float64 {
	if preferred == "" {
		return 1.0
	}
	if r.Complexity == preferred {
		return 1.0
	}
	if complexityDistance(r.Complexity, preferred) == 1 {
		return 0.5
	}
	return 0.0
}

func complexityRank(c memory.Complexity) int {
	switch c {
	case memory.ComplexityLow:
		return 0
	case memory.ComplexityMedium:
		return 1
	case memory.ComplexityHigh:
		return 2
	}
	return 1
}

func complexityDistance(a, b memory.Complexity) int {
	d := complexityRank(a) - complexityRank(b)
	if d < 0 {
		d = -d
	}
	return d
}

// relevance blends similarity, recency, and complexity fit.
func (w Weights) relevance(similarity, recency, complexity float64) float64 {
	return similarity*w.Similarity + recency*w.Recency + complexity*w.Complexity
}
