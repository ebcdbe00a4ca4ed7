package curatecmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/cliui"
	"github.com/engramhq/engram/pkg/curator"
)

const autoLongDesc string = `Run the full curation pipeline.

Deduplicates, surfaces consolidation candidates, archives old memories and
enhances low-metadata records in one pass. Reports the plan by default;
pass --execute to apply it.

Examples:
  engram curate auto
  engram curate auto --execute`

const autoShortDesc string = "Run the full curation pipeline"

func newAutoCmd() *cobra.Command {
	var apiTarget string
	var execute bool

	cmd := &cobra.Command{
		Use:   "auto",
		Short: autoShortDesc,
		Long:  autoLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runAuto(apiTarget, !execute)
		},
	}

	cmd.Flags().BoolVar(&execute, "execute", false, "Apply the changes instead of reporting them")
	cmd.PreRunE = addAPITargetFlag(cmd, &apiTarget)

	return cmd
}

func runAuto(apiTarget string, dryRun bool) error {
	data, err := callCurator(apiTarget, "/api/curator/autocurate", map[string]any{
		"dry_run": dryRun,
	})
	if err != nil {
		return err
	}

	var result curator.AutoCurateResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decoding autocurate result: %w", err)
	}

	fmt.Printf("\n  %s Curation pass complete\n\n", cliui.SuccessMark)
	for _, action := range result.Actions {
		fmt.Printf("    %s\n", cliui.ValueStyle.Render(action))
	}
	if len(result.ConsolidationCandidates) > 0 {
		fmt.Printf("\n  %s\n", cliui.DimStyle.Render("Consolidation candidates:"))
		for _, cand := range result.ConsolidationCandidates {
			fmt.Printf("    %s  %s\n",
				cliui.KeyStyle.Render(cand.Sample),
				cliui.DimStyle.Render(fmt.Sprintf("%d records", len(cand.RecordIDs))),
			)
		}
	}
	fmt.Println()

	return nil
}
