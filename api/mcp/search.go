package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/search"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search stored session memories using semantic retrieval. Returns the most relevant memories for the query text, ranked by similarity, recency and complexity."
)

// SearchInput represents the input arguments for the memory_search tool.
type SearchInput struct {
	Query        string   `json:"query" jsonschema:"the search query text to find relevant memories"`
	MaxResults   int      `json:"max_results,omitempty" jsonschema:"number of results to return (default: 10)"`
	Project      string   `json:"project,omitempty" jsonschema:"restrict results to a single project"`
	Technologies []string `json:"technologies,omitempty" jsonschema:"restrict results to memories tagged with any of these technologies"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Date         string   `json:"date"`
	Technologies []string `json:"technologies,omitempty"`
	Similarity   float64  `json:"similarity"`
	Relevance    float64  `json:"relevance"`
}

// SearchOutput represents the output of the memory_search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP search request",
		zap.String("query", input.Query),
		zap.Int("maxResults", input.MaxResults),
	)

	resp, err := s.config.Searcher.Search(ctx, search.Request{
		Query:        input.Query,
		MaxResults:   input.MaxResults,
		Project:      input.Project,
		Technologies: input.Technologies,
	})
	if err != nil {
		logger.Error("failed to search memories", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to search memories: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	searchResults := make([]SearchResult, 0, len(resp.Results))
	for _, result := range resp.Results {
		searchResults = append(searchResults, SearchResult{
			ID:           result.Record.ID,
			Title:        result.Record.Title,
			Content:      result.Record.Content,
			Date:         result.Record.Date,
			Technologies: result.Record.Technologies,
			Similarity:   result.Similarity,
			Relevance:    result.Relevance,
		})
	}

	output := SearchOutput{
		Query:   resp.Query,
		Results: searchResults,
		Count:   len(searchResults),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
