// Package search ranks memory records against a free-text query.
//
// Retrieval is a two-stage pipeline: the similarity index supplies a wide
// candidate set, then candidates are filtered and re-ranked by a blend of
// similarity, recency, and complexity fit. Filtering happens before ranking
// so a filter never promotes an otherwise-worse record into the results.
package search

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
)

const (
	// DefaultMaxResults is returned when the caller doesn't ask for a count.
	DefaultMaxResults = 5

	// DefaultMinSimilarity drops candidates with too little semantic overlap.
	DefaultMinSimilarity = 0.3

	// fetchK is the candidate set size pulled from the index for an
	// unfiltered search. Filtered searches scan the whole index instead,
	// so matching records can never be truncated away by more-similar
	// records that fail the filter.
	fetchK = 50
)

// Request describes one search.
type Request struct {
	// Query is the free-text query. Required.
	Query string `json:"query"`

	// MaxResults caps the result count. Values above
	// memory.MaxSearchResults are clamped; zero means DefaultMaxResults.
	MaxResults int `json:"max_results"`

	// Source keeps only records carrying this source tag. Filtering happens
	// before ranking, so the similarity floor applies to the filtered
	// population.
	Source string `json:"source_filter,omitempty"`

	// Technologies keeps only records tagged with at least one of these.
	Technologies []string `json:"technologies,omitempty"`

	// Project keeps only records from this project.
	Project string `json:"project,omitempty"`

	// Complexity biases ranking toward records of this complexity.
	Complexity memory.Complexity `json:"complexity,omitempty"`

	// MinSimilarity overrides the configured similarity floor when > 0.
	MinSimilarity float64 `json:"min_similarity,omitempty"`
}

// Result is one ranked record.
type Result struct {
	Record     *memory.Record `json:"record"`
	Similarity float64        `json:"similarity"`
	Relevance  float64        `json:"relevance"`
}

// Response is a ranked result page.
type Response struct {
	Query        string   `json:"query"`
	Results      []Result `json:"results"`
	SearchTimeMs int64    `json:"search_time_ms"`
}

// Searcher runs ranked retrieval over a memory service.
type Searcher struct {
	svc           *memory.Service
	weights       Weights
	minSimilarity float64
	logger        *zap.Logger
	nowFunc       func() time.Time
}

// Config holds tunables for a Searcher.
type Config struct {
	// Weights blends the ranking components. Zero value means
	// DefaultWeights.
	Weights Weights

	// MinSimilarity is the default similarity floor. Zero means
	// DefaultMinSimilarity.
	MinSimilarity float64
}

// NewSearcher creates a Searcher over the given service.
func NewSearcher(svc *memory.Service, cfg Config, logger *zap.Logger) *Searcher {
	weights := cfg.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}

	minSimilarity := cfg.MinSimilarity
	if minSimilarity == 0 {
		minSimilarity = DefaultMinSimilarity
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Searcher{
		svc:           svc,
		weights:       weights,
		minSimilarity: minSimilarity,
		logger:        logger,
		nowFunc:       time.Now,
	}
}

// Search embeds the query, filters candidates, and returns a ranked page.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, memory.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > memory.MaxSearchResults {
		maxResults = memory.MaxSearchResults
	}

	minSimilarity := s.minSimilarity
	if req.MinSimilarity > 0 {
		minSimilarity = req.MinSimilarity
	}

	start := s.nowFunc()

	fetch := fetchK
	if hasHardFilters(req) {
		total, err := s.svc.Count(ctx)
		if err != nil {
			return nil, err
		}
		if total > fetch {
			fetch = total
		}
	}

	candidates, err := s.svc.Similar(ctx, req.Query, fetch)
	if err != nil {
		return nil, err
	}

	now := start.UTC()
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		similarity := float64(c.Similarity)
		if similarity < minSimilarity {
			continue
		}
		if !matchesFilters(c.Record, req) {
			continue
		}

		relevance := s.weights.relevance(
			similarity,
			recencyScore(c.Record, now),
			complexityScore(c.Record, req.Complexity),
		)
		results = append(results, Result{
			Record:     c.Record,
			Similarity: similarity,
			Relevance:  relevance,
		})
	}

	// Relevance ties break by more recent date, then lexicographic id.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		if results[i].Record.Date != results[j].Record.Date {
			return results[i].Record.Date > results[j].Record.Date
		}
		return results[i].Record.ID < results[j].Record.ID
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	elapsed := s.nowFunc().Sub(start)

	s.logger.Debug("search completed",
		zap.String("query", req.Query),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", elapsed),
	)

	return &Response{
		Query:        req.Query,
		Results:      results,
		SearchTimeMs: elapsed.Milliseconds(),
	}, nil
}

// hasHardFilters reports whether the request restricts the candidate
// population rather than just re-ranking it.
func hasHardFilters(req Request) bool {
	return req.Source != "" || req.Project != "" || len(req.Technologies) > 0
}

// matchesFilters applies the request's hard filters to one record.
func matchesFilters(r *memory.Record, req Request) bool {
	if req.Source != "" && r.Source != req.Source {
		return false
	}
	if req.Project != "" && r.Project != req.Project {
		return false
	}

	if len(req.Technologies) > 0 {
		tagged := make(map[string]bool, len(r.Technologies))
		for _, t := range r.Technologies {
			tagged[t] = true
		}
		any := false
		for _, t := range req.Technologies {
			if tagged[t] {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}

	return true
}
