// Package addcmder provides the add command for storing memories via the API.
package addcmder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/cliui"
	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/logger"
	"github.com/engramhq/engram/pkg/memory"
)

type addCommander struct {
	content      string
	title        string
	source       string
	project      string
	technologies []string
	complexity   string
	async        bool

	apiTarget string

	debug  bool
	logger *zap.Logger
}

const addLongDesc string = `Store a new memory via the engram API.

The content comes from the first argument, or from stdin when the argument
is omitted or "-". Title, technologies and complexity are inferred from the
content when not provided.

Examples:
  engram add "Fixed the jwt refresh race by serializing token renewal"
  engram add --title "Postgres pool tuning" --technologies postgres,go - < notes.md
  git show -s --format=%B | engram add --project shop -`

const addShortDesc string = "Store a new memory"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.MaximumNArgs(1),
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
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			if len(args) == 1 && args[0] != "-" {
				cmder.content = args[0]
			} else {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading content from stdin: %w", err)
				}
				cmder.content = strings.TrimSpace(string(raw))
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.title, "title", "t", "", "Title for the memory (inferred when empty)")
	cmd.Flags().StringVar(&cmder.source, "source", memory.SourceManual, "Source tag for the memory")
	cmd.Flags().StringVarP(&cmder.project, "project", "p", "", "Project the memory belongs to")
	cmd.Flags().StringSliceVar(&cmder.technologies, "technologies", nil, "Technologies the memory relates to (inferred when empty)")
	cmd.Flags().StringVar(&cmder.complexity, "complexity", "", "Complexity estimate (low, medium, high; inferred when empty)")
	cmd.Flags().BoolVar(&cmder.async, "async", false, "Queue the write instead of waiting for it")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return cmd
}

type addOutput struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Queued bool   `json:"queued"`
}

func (c *addCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if c.content == "" {
		return fmt.Errorf("no content to store")
	}

	addURL, err := url.Parse(c.apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	addURL.Path = "/api/add_memory"

	body := map[string]any{
		"content": c.content,
		"source":  c.source,
		"async":   c.async,
	}
	if c.title != "" {
		body["title"] = c.title
	}
	if c.project != "" {
		body["project"] = c.project
	}
	if len(c.technologies) > 0 {
		body["technologies"] = c.technologies
	}
	if c.complexity != "" {
		body["complexity"] = c.complexity
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding add request: %w", err)
	}

	resp, err := http.Post(addURL.String(), "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("calling add API: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding add response: %w", err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("add failed: %s", env.Error.Message)
		}
		return fmt.Errorf("add failed with status %d", resp.StatusCode)
	}

	var out addOutput
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return fmt.Errorf("decoding add result: %w", err)
	}

	if out.Queued {
		fmt.Printf("  %s Queued memory for storage\n", cliui.SuccessMark)
		return nil
	}

	fmt.Printf("  %s Stored %s\n    %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(out.ID),
		cliui.ValueStyle.Render(out.Title),
	)
	return nil
}
