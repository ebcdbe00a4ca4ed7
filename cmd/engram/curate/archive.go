package curatecmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/cliui"
	"github.com/engramhq/engram/pkg/curator"
)

const archiveLongDesc string = `Archive memories older than the age threshold.

Archived memories stay in the store and remain searchable when explicitly
requested, but drop out of default retrieval. The threshold defaults to the
configured curation.archive_days. Reports the plan by default; pass
--execute to apply it.

Examples:
  engram curate archive
  engram curate archive --days 30 --execute`

const archiveShortDesc string = "Archive old memories"

func newArchiveCmd() *cobra.Command {
	var apiTarget string
	var days int
	var execute bool

	cmd := &cobra.Command{
		Use:   "archive",
		Short: archiveShortDesc,
		Long:  archiveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runArchive(apiTarget, days, !execute)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in days (default from config)")
	cmd.Flags().BoolVar(&execute, "execute", false, "Apply the changes instead of reporting them")
	cmd.PreRunE = addAPITargetFlag(cmd, &apiTarget)

	return cmd
}

func runArchive(apiTarget string, days int, dryRun bool) error {
	body := map[string]any{"dry_run": dryRun}
	if days > 0 {
		body["days"] = days
	}

	data, err := callCurator(apiTarget, "/api/curator/archive", body)
	if err != nil {
		return err
	}

	var result curator.ArchiveResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decoding archive result: %w", err)
	}

	verb := "Archived"
	if result.DryRun {
		verb = "Would archive"
	}

	fmt.Printf("\n  %s %s %d memories older than %d days\n\n",
		cliui.SuccessMark, verb, len(result.Archived), result.Days)

	for _, rec := range result.Archived {
		fmt.Printf("    %s  %s %s\n",
			cliui.KeyStyle.Render(rec.ID),
			cliui.ValueStyle.Render(rec.Title),
			cliui.DimStyle.Render(rec.Date),
		)
	}
	if len(result.Archived) > 0 {
		fmt.Println()
	}

	return nil
}
