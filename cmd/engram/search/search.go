// Package searchcmder provides the search command for semantic retrieval over memories.
package searchcmder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/logger"
	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/search"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	techStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type searchCommander struct {
	query        string
	maxResults   int
	minSim       float64
	source       string
	project      string
	technologies []string
	quiet        bool

	apiTarget string

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search stored memories via the engram API.

Runs a ranked semantic retrieval over the memory store, blending vector
similarity with recency and complexity. Requires a running engram engine
(engram serve).

Use --quiet to output only record IDs, one per line. This is useful for
piping into other commands like engram curate consolidate.

Example:
  engram search "null pointer in auth flow"
  engram search "docker compose networking" --max 5 --technologies docker
  engram search "flaky checkout test" --project shop --min-similarity 0.5
  engram curate consolidate $(engram search "jwt refresh" --quiet --max 3)`

const searchShortDesc string = "Search stored memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVarP(&cmder.maxResults, "max", "m", 0, "Number of results to return (default 10)")
	cmd.Flags().Float64Var(&cmder.minSim, "min-similarity", 0, "Similarity floor for results")
	cmd.Flags().StringVar(&cmder.source, "source", "", "Only return memories from this source")
	cmd.Flags().StringVarP(&cmder.project, "project", "p", "", "Only return memories from this project")
	cmd.Flags().StringSliceVarP(&cmder.technologies, "technologies", "t", nil, "Only return memories tagged with any of these technologies")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only record IDs, one per line (for piping)")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

// Output is the decoded data payload of POST /api/search.
type Output struct {
	Query        string          `json:"query"`
	Results      []search.Result `json:"results"`
	TotalResults int             `json:"total_results"`
	SearchTimeMs int64           `json:"search_time_ms"`
}

func (c *searchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	output, err := SearchAPI(c.apiTarget, search.Request{
		Query:         c.query,
		MaxResults:    c.maxResults,
		MinSimilarity: c.minSim,
		Source:        c.source,
		Project:       c.project,
		Technologies:  c.technologies,
	})
	if err != nil {
		return err
	}

	if output.TotalResults == 0 {
		if !c.quiet {
			fmt.Println("No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, result := range output.Results {
			fmt.Println(result.Record.ID)
		}
		return nil
	}

	fmt.Printf("\n%s %s %s\n\n",
		headerStyle.Render("Search Results for:"),
		idStyle.Render(fmt.Sprintf("%q", output.Query)),
		dimStyle.Render(fmt.Sprintf("(%dms)", output.SearchTimeMs)),
	)

	for i, result := range output.Results {
		c.printResult(i+1, result)
	}

	return nil
}

func (c *searchCommander) printResult(rank int, result search.Result) {
	fmt.Printf("  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("relevance: %.4f  similarity: %.4f", result.Relevance, result.Similarity)),
		idStyle.Render(result.Record.ID),
	)

	fmt.Printf("  %s %s\n",
		titleStyle.Render(result.Record.Title),
		dimStyle.Render(result.Record.Date),
	)

	preview := result.Record.Content
	if len(preview) > 160 {
		preview = preview[:157] + "..."
	}
	preview = strings.ReplaceAll(preview, "\n", " ")
	fmt.Printf("  %s\n", previewStyle.Render(preview))

	if len(result.Record.Technologies) > 0 {
		fmt.Printf("  %s\n", techStyle.Render(strings.Join(result.Record.Technologies, ", ")))
	}
	if result.Record.Archived {
		fmt.Printf("  %s\n", dimStyle.Render("(archived)"))
	}

	fmt.Println()
}

// envelope mirrors the API response contract.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message   string `json:"message"`
		Operation string `json:"operation,omitempty"`
	} `json:"error"`
}

// SearchAPI calls the engram search API and returns the parsed output.
// Exported so other commands (e.g. browse) can reuse it.
func SearchAPI(apiTarget string, req search.Request) (*Output, error) {
	searchURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	searchURL.Path = "/api/search"

	body := map[string]any{
		"query": req.Query,
	}
	if req.MaxResults > 0 {
		body["max_results"] = req.MaxResults
	}
	if req.MinSimilarity > 0 {
		body["similarity_threshold"] = req.MinSimilarity
	}
	if req.Source != "" {
		body["source_filter"] = req.Source
	}
	if req.Project != "" {
		body["project"] = req.Project
	}
	if len(req.Technologies) > 0 {
		body["technologies"] = req.Technologies
	}
	if req.Complexity != memory.Complexity("") {
		body["complexity"] = string(req.Complexity)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	resp, err := http.Post(searchURL.String(), "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("calling search API: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("search failed: %s", env.Error.Message)
		}
		return nil, fmt.Errorf("search failed with status %d", resp.StatusCode)
	}

	var output Output
	if err := json.Unmarshal(env.Data, &output); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}

	return &output, nil
}
