package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/search"
)

// searchRequest is the body of POST /api/search.
type searchRequest struct {
	Query               string   `json:"query"`
	MaxResults          int      `json:"max_results,omitempty"`
	SimilarityThreshold float64  `json:"similarity_threshold,omitempty"`
	SourceFilter        string   `json:"source_filter,omitempty"`
	Technologies        []string `json:"technologies,omitempty"`
	Project             string   `json:"project,omitempty"`
	Complexity          string   `json:"complexity,omitempty"`
}

// handleSearch runs a ranked retrieval.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.Query == "" {
		return badRequest(c, "query is required")
	}

	resp, err := s.searcher.Search(c.Context(), search.Request{
		Query:         req.Query,
		MaxResults:    req.MaxResults,
		MinSimilarity: req.SimilarityThreshold,
		Source:        req.SourceFilter,
		Technologies:  req.Technologies,
		Project:       req.Project,
		Complexity:    complexityFrom(req.Complexity),
	})
	if err != nil {
		return respondErr(c, "search", err)
	}

	return ok(c, fiber.Map{
		"query":          resp.Query,
		"results":        resp.Results,
		"total_results":  len(resp.Results),
		"search_time_ms": resp.SearchTimeMs,
	})
}

// complexityFrom maps the request string to a ranking bias. Unknown values
// mean no bias rather than a rejected request.
func complexityFrom(s string) memory.Complexity {
	switch memory.Complexity(s) {
	case memory.ComplexityLow, memory.ComplexityMedium, memory.ComplexityHigh:
		return memory.Complexity(s)
	default:
		return ""
	}
}
