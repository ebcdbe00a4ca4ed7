// Package browsecmder provides the browse command, an interactive TUI over
// the memory corpus.
package browsecmder

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/memory"
)

const browseLongDesc string = `Browse stored memories in an interactive TUI.

Lists memories newest first with cursor navigation and a detail view.
Requires a running engram engine (engram serve).

Keys:
  j/k or arrows   move
  enter           open the selected memory
  esc or h        back to the list
  a               toggle archived memories
  r               reload
  q               quit

Examples:
  engram browse
  engram browse --archived
  engram browse --limit 200`

const browseShortDesc string = "Browse memories in a TUI"

type browseCommander struct {
	limit    int
	archived bool

	apiTarget string
}

func NewBrowseCmd() *cobra.Command {
	cmder := &browseCommander{}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: browseShortDesc,
		Long:  browseLongDesc,
		Args:  cobra.NoArgs,
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
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVar(&cmder.limit, "limit", 100, "Maximum memories to load")
	cmd.Flags().BoolVar(&cmder.archived, "archived", false, "Include archived memories")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

func (c *browseCommander) run() error {
	return runBrowseTUI(c.apiTarget, c.limit, c.archived)
}

// listPage is the decoded data payload of GET /api/memories.
type listPage struct {
	Records    []*memory.Record `json:"records"`
	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Total int `json:"total"`
	} `json:"pagination"`
}

// fetchMemories loads one page of records from the API.
func fetchMemories(apiTarget string, limit int, includeArchived bool) (*listPage, error) {
	target, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = "/api/memories"

	q := target.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("include_archived", strconv.FormatBool(includeArchived))
	target.RawQuery = q.Encode()

	resp, err := http.Get(target.String())
	if err != nil {
		return nil, fmt.Errorf("calling memories API: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading memories response: %w", err)
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding memories response: %w", err)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("listing memories failed: %s", env.Error.Message)
		}
		return nil, fmt.Errorf("listing memories failed with status %d", resp.StatusCode)
	}

	var page listPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("decoding memories page: %w", err)
	}

	return &page, nil
}
