package curatecmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/cliui"
	"github.com/engramhq/engram/pkg/curator"
)

const dedupLongDesc string = `Remove near-duplicate memories.

Clusters memories whose content similarity crosses the duplicate threshold
and keeps the highest-quality record of each cluster. Reports the plan by
default; pass --execute to apply it.

Examples:
  engram curate dedup
  engram curate dedup --execute`

const dedupShortDesc string = "Remove near-duplicate memories"

func newDedupCmd() *cobra.Command {
	var apiTarget string
	var execute bool

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: dedupShortDesc,
		Long:  dedupLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDedup(apiTarget, !execute)
		},
	}

	cmd.Flags().BoolVar(&execute, "execute", false, "Apply the changes instead of reporting them")
	cmd.PreRunE = addAPITargetFlag(cmd, &apiTarget)

	return cmd
}

func runDedup(apiTarget string, dryRun bool) error {
	data, err := callCurator(apiTarget, "/api/curator/deduplicate", map[string]any{
		"dry_run": dryRun,
	})
	if err != nil {
		return err
	}

	var result curator.DedupResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decoding dedup result: %w", err)
	}

	verb := "Removed"
	if result.DryRun {
		verb = "Would remove"
	}

	fmt.Printf("\n  %s %s %d duplicate(s) across %d cluster(s)\n\n",
		cliui.SuccessMark, verb, len(result.Removed), result.Clusters)

	for _, id := range result.Removed {
		fmt.Printf("    %s\n", cliui.KeyStyle.Render(id))
	}
	if len(result.Removed) > 0 {
		fmt.Println()
	}

	return nil
}
