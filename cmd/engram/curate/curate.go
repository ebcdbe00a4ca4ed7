// Package curatecmder provides the curate command for corpus maintenance
// operations against a running engine.
package curatecmder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/config"
)

const curateLongDesc string = `Run curation operations over the memory corpus.

Curation runs against a live engine (engram serve) and takes the store-wide
exclusive lock, so searches and writes briefly queue while it works.

Mutating subcommands report their plan by default; pass --execute to
apply it.

Use subcommands to run individual operations:
  engram curate health         Analyze the corpus without changing it
  engram curate dedup          Remove near-duplicate memories
  engram curate consolidate    Merge related memories into one
  engram curate archive        Archive memories past the age threshold
  engram curate enhance        Fill in missing metadata on one memory
  engram curate auto           Run the full curation pipeline

Examples:
  engram curate health
  engram curate dedup --execute
  engram curate auto`

const curateShortDesc string = "Curate the memory corpus"

func NewCurateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curate",
		Short: curateShortDesc,
		Long:  curateLongDesc,
	}

	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDedupCmd())
	cmd.AddCommand(newConsolidateCmd())
	cmd.AddCommand(newArchiveCmd())
	cmd.AddCommand(newEnhanceCmd())
	cmd.AddCommand(newAutoCmd())

	return cmd
}

// addAPITargetFlag registers --api-target and returns a PreRunE that fills
// it from config when the flag is left unchanged.
func addAPITargetFlag(cmd *cobra.Command, target *string) func(*cobra.Command, []string) error {
	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(target, "api-target", defaults.Client.APITarget, "Engram API server URL")

	return func(cmd *cobra.Command, _ []string) error {
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
			*target = cfg.Client.APITarget
		}
		return nil
	}
}

// callCurator POSTs body to the given curator API path (or GETs when body is
// nil) and returns the envelope data payload.
func callCurator(apiTarget, path string, body any) (json.RawMessage, error) {
	target, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = path

	var resp *http.Response
	if body == nil {
		resp, err = http.Get(target.String())
	} else {
		var raw []byte
		raw, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		resp, err = http.Post(target.String(), "application/json", bytes.NewReader(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("calling curator API: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading curator response: %w", err)
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Message   string `json:"message"`
			Operation string `json:"operation,omitempty"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding curator response: %w", err)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("curation failed: %s", env.Error.Message)
		}
		return nil, fmt.Errorf("curation failed with status %d", resp.StatusCode)
	}

	return env.Data, nil
}
