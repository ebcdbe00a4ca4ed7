package curator

import (
	"math"
	"strings"
	"unicode"
)

// lexicalVector is a sparse TF-IDF vector over a shared vocabulary.
type lexicalVector map[string]float64

// lexicalVectors builds L2-normalized TF-IDF vectors for the given texts.
// The idf term is smoothed, log((1+N)/(1+df)) + 1, so terms present in every
// document still carry weight; without smoothing a two-document corpus of
// near-identical texts would zero out entirely.
func lexicalVectors(texts []string) []lexicalVector {
	tokenized := make([][]string, len(texts))
	df := make(map[string]int)

	for i, text := range texts {
		tokenized[i] = lexicalTokens(text)
		seen := make(map[string]bool)
		for _, tok := range tokenized[i] {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	n := float64(len(texts))
	idf := make(map[string]float64, len(df))
	for tok, count := range df {
		idf[tok] = math.Log((1+n)/(1+float64(count))) + 1
	}

	vectors := make([]lexicalVector, len(texts))
	for i, tokens := range tokenized {
		vec := make(lexicalVector)
		for _, tok := range tokens {
			vec[tok] += idf[tok]
		}

		var norm float64
		for _, w := range vec {
			norm += w * w
		}
		if norm > 0 {
			scale := 1 / math.Sqrt(norm)
			for tok := range vec {
				vec[tok] *= scale
			}
		}
		vectors[i] = vec
	}

	return vectors
}

// cosine returns the cosine similarity of two normalized sparse vectors.
func (v lexicalVector) cosine(other lexicalVector) float64 {
	if len(other) < len(v) {
		v, other = other, v
	}

	var dot float64
	for tok, w := range v {
		dot += w * other[tok]
	}
	return dot
}

// lexicalTokens lowercases and splits text into letter/digit runs.
func lexicalTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// snippet bounds content for pairwise comparison.
func snippet(content string) string {
	if len(content) > dedupSnippetLength {
		return content[:dedupSnippetLength]
	}
	return content
}
