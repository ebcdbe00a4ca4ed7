package curatecmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/cliui"
	"github.com/engramhq/engram/pkg/curator"
)

const consolidateLongDesc string = `Merge related memories into a single record.

Takes two or more record IDs and replaces them with one consolidated memory
carrying the union of their technologies and file paths. The sources are
removed after the merge succeeds.

Examples:
  engram curate consolidate 3f2a91 88c0de
  engram curate consolidate --title "JWT refresh issues" $(engram search "jwt refresh" --quiet --max 3)`

const consolidateShortDesc string = "Merge related memories"

func newConsolidateCmd() *cobra.Command {
	var apiTarget string
	var title string

	cmd := &cobra.Command{
		Use:   "consolidate <id> <id> [id...]",
		Short: consolidateShortDesc,
		Long:  consolidateLongDesc,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConsolidate(apiTarget, args, title)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Title for the consolidated memory (derived when empty)")
	cmd.PreRunE = addAPITargetFlag(cmd, &apiTarget)

	return cmd
}

func runConsolidate(apiTarget string, ids []string, title string) error {
	body := map[string]any{"ids": ids}
	if title != "" {
		body["title"] = title
	}

	data, err := callCurator(apiTarget, "/api/curator/consolidate", body)
	if err != nil {
		return err
	}

	var result curator.ConsolidateResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decoding consolidate result: %w", err)
	}

	fmt.Printf("\n  %s Consolidated %d memories into %s\n    %s\n\n",
		cliui.SuccessMark,
		len(result.SourceIDs),
		cliui.KeyStyle.Render(result.ConsolidatedID),
		cliui.ValueStyle.Render(result.Title),
	)

	return nil
}
