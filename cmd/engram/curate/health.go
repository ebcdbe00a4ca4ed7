package curatecmder

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/cliui"
	"github.com/engramhq/engram/pkg/curator"
)

const healthLongDesc string = `Analyze the memory corpus without changing it.

Reports duplicates, stale records, error patterns, technology and quality
distributions, consolidation opportunities and recommended curation actions.

Examples:
  engram curate health`

const healthShortDesc string = "Analyze the memory corpus"

func newHealthCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:     "health",
		Aliases: []string{"stats", "analyze"},
		Short:   healthShortDesc,
		Long:    healthLongDesc,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runHealth(apiTarget)
		},
	}

	cmd.PreRunE = addAPITargetFlag(cmd, &apiTarget)

	return cmd
}

func runHealth(apiTarget string) error {
	data, err := callCurator(apiTarget, "/api/curator/health", nil)
	if err != nil {
		return err
	}

	var report curator.HealthReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("decoding health report: %w", err)
	}

	fmt.Printf("\n  %s\n\n", cliui.KeyStyle.Render("Corpus Health"))
	fmt.Printf("    records:  %d active, %d archived\n",
		report.TotalRecords-report.ArchivedRecords, report.ArchivedRecords)
	fmt.Printf("    duplicates: %d exact group(s), %d near pair(s)\n",
		len(report.Duplicates.Exact), len(report.Duplicates.Near))
	fmt.Printf("    stale:    %d past archive age\n", len(report.Stale))
	fmt.Printf("    errors:   %d record(s), %.0f%% of corpus\n",
		report.ErrorPatterns.Total, report.ErrorPatterns.ErrorRate*100)

	printDistribution("quality", report.QualityDistribution)
	printDistribution("age", report.AgeDistribution)
	printDistribution("technologies", report.TechnologyDistribution)

	if len(report.ConsolidationOpportunities) > 0 {
		fmt.Printf("\n  %s\n", cliui.DimStyle.Render("Consolidation opportunities:"))
		for _, cand := range report.ConsolidationOpportunities {
			fmt.Printf("    %s (%s, %d records)\n",
				cliui.ValueStyle.Render(cand.Sample), cand.Kind, len(cand.RecordIDs))
		}
	}

	if len(report.Recommendations) > 0 {
		fmt.Printf("\n  %s\n", cliui.DimStyle.Render("Recommendations:"))
		for _, rec := range report.Recommendations {
			fmt.Printf("    %s\n", rec)
		}
	}

	fmt.Println()
	return nil
}

func printDistribution(name string, dist map[string]int) {
	if len(dist) == 0 {
		return
	}

	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("\n  %s\n", cliui.DimStyle.Render(name+":"))
	for _, k := range keys {
		fmt.Printf("    %-12s %d\n", k, dist[k])
	}
}
