// Package hashed implements a deterministic feature-hashing embedder.
//
// It tokenizes text into lowercase word tokens, hashes each token with FNV-1a
// into a fixed number of buckets, counts occurrences, and L2-normalizes the
// result. Two texts sharing vocabulary land in overlapping buckets and score
// high cosine similarity, with no model download and no network dependency.
// It is the default provider so a fresh installation works offline.
package hashed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the default bucket count for hashed embeddings.
const DefaultDimensions = 256

// Embedder is a deterministic, dependency-free embeddings.Embedder.
type Embedder struct {
	dimensions uint
}

// Config holds configuration for the hashed embedder.
type Config struct {
	// Dimensions is the bucket count. Defaults to DefaultDimensions if zero.
	Dimensions uint
}

// NewEmbedder creates a new feature-hashing embedder.
func NewEmbedder(cfg Config) *Embedder {
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = DefaultDimensions
	}

	return &Embedder{dimensions: dimensions}
}

// Embed converts text into a normalized bag-of-hashed-words vector.
// Identical text always produces an identical vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

// Dimensions reports the configured bucket count.
func (e *Embedder) Dimensions() uint {
	return e.dimensions
}

// Close is a no-op for the hashed embedder.
func (e *Embedder) Close() error {
	return nil
}

// tokenize splits text into lowercase runs of letters and digits.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
