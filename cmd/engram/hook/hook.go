// Package hookcmder provides the hook command that agent harnesses call on
// session lifecycle events.
package hookcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/hooks"
	"github.com/engramhq/engram/pkg/logger"
)

type hookCommander struct {
	eventType string
	sessionID string
	project   string
	action    string
	filePath  string
	output    string
	failed    bool
	stdin     bool

	apiTarget string
	timeout   time.Duration

	debug  bool
	logger *zap.Logger
}

const hookLongDesc string = `Deliver a session lifecycle event to the engine.

The event type comes from the positional argument or --type; the rest of
the event comes from flags, or from a JSON object on stdin with --stdin.
The command is fail-open end to end: if the engine is down, slow or
returns garbage, it prints an empty result and exits zero so the wrapped
agent action always proceeds.

The result is printed as JSON on stdout for the calling harness.

Examples:
  engram hook session_start --session-id s1 --project shop
  engram hook pre_action --session-id s1 --file src/auth/login.py
  engram hook post_action --session-id s1 --action "run tests" --failed --output "$OUT"
  engram hook session_end --session-id s1
  echo '{"type":"pre_action","session_id":"s1","file_path":"main.go"}' | engram hook --stdin`

const hookShortDesc string = "Deliver a session lifecycle event"

func NewHookCmd() *cobra.Command {
	cmder := &hookCommander{}

	cmd := &cobra.Command{
		Use:   "hook [event-type]",
		Short: hookShortDesc,
		Long:  hookLongDesc,
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
			if !cmd.Flags().Changed("timeout") && cfg.Hooks.TimeoutSeconds > 0 {
				cmder.timeout = time.Duration(cfg.Hooks.TimeoutSeconds) * time.Second
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			if len(args) > 0 && !cmd.Flags().Changed("type") {
				cmder.eventType = args[0]
			}
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&cmder.eventType, "type", "", "Event type (session_start, pre_action, post_action, session_end)")
	cmd.Flags().StringVar(&cmder.sessionID, "session-id", "", "Session identifier")
	cmd.Flags().StringVarP(&cmder.project, "project", "p", "", "Project name (session_start)")
	cmd.Flags().StringVarP(&cmder.action, "action", "a", "", "Action description (pre_action, post_action)")
	cmd.Flags().StringVarP(&cmder.filePath, "file", "f", "", "File the action touches")
	cmd.Flags().StringVarP(&cmder.output, "output", "o", "", "Action output (post_action)")
	cmd.Flags().BoolVar(&cmder.failed, "failed", false, "Mark the action as failed (post_action)")
	cmd.Flags().BoolVar(&cmder.stdin, "stdin", false, "Read the event as JSON from stdin")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Engram API server URL")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", hooks.DefaultTimeout, "Hook delivery timeout")

	return cmd
}

// run never returns an error: hook delivery is fail-open by contract.
func (c *hookCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	event := hooks.Event{
		Type:      hooks.EventType(c.eventType),
		SessionID: c.sessionID,
		Project:   c.project,
		Action:    c.action,
		FilePath:  c.filePath,
		Output:    c.output,
		Failed:    c.failed,
	}

	if c.stdin {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			c.logger.Debug("could not read event from stdin", zap.Error(err))
			return printResult(&hooks.Result{})
		}
		if err := json.Unmarshal(raw, &event); err != nil {
			c.logger.Debug("could not decode event from stdin", zap.Error(err))
			return printResult(&hooks.Result{})
		}
	}

	client := hooks.NewClient(hooks.ClientConfig{
		BaseURL: c.apiTarget,
		Timeout: c.timeout,
	}, c.logger)

	result := client.Send(context.Background(), event)
	return printResult(result)
}

func printResult(result *hooks.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		fmt.Println("{}")
		return nil
	}
	fmt.Println(string(raw))
	return nil
}
