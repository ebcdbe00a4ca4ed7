package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/engramhq/engram/pkg/memory"
)

var (
	storeToolName    = "memory_store"
	storeDescription = "Store a new memory in the engram layer. Use this to persist solutions, decisions and error fixes so future sessions can recall them. Title, technologies and a complexity estimate are inferred from the content when omitted."
)

// StoreInput represents the input arguments for the memory_store tool.
type StoreInput struct {
	Content      string   `json:"content" jsonschema:"the memory content to store"`
	Title        string   `json:"title,omitempty" jsonschema:"short title for the memory (inferred when omitted)"`
	Project      string   `json:"project,omitempty" jsonschema:"project the memory belongs to"`
	Technologies []string `json:"technologies,omitempty" jsonschema:"technologies the memory relates to (inferred when omitted)"`
}

// StoreOutput represents the structured output of a memory store.
type StoreOutput struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	QualityScore float64 `json:"quality_score"`
}

// handleStore persists a memory record via MCP.
func (s *Server) handleStore(ctx context.Context, _ *mcp.CallToolRequest, input StoreInput) (*mcp.CallToolResult, StoreOutput, error) {
	if input.Content == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "content is required"},
			},
		}, StoreOutput{}, nil
	}

	stored, err := s.config.Service.Add(ctx, &memory.Record{
		Content:      input.Content,
		Title:        input.Title,
		Project:      input.Project,
		Technologies: input.Technologies,
		Source:       memory.SourceMCP,
	})
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory store failed: %v", err)},
			},
		}, StoreOutput{}, nil
	}

	output := StoreOutput{
		ID:           stored.ID,
		Title:        stored.Title,
		QualityScore: stored.QualityScore,
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize result: %v", err)},
			},
		}, StoreOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
