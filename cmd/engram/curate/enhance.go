package curatecmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/cliui"
	"github.com/engramhq/engram/pkg/curator"
)

const enhanceLongDesc string = `Fill in missing metadata on one memory.

Infers a title, technology tags and a complexity estimate from the record's
content where those fields are empty, then recomputes its quality score.

Examples:
  engram curate enhance 3f2a91`

const enhanceShortDesc string = "Enhance a memory's metadata"

func newEnhanceCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:   "enhance <id>",
		Short: enhanceShortDesc,
		Long:  enhanceLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runEnhance(apiTarget, args[0])
		},
	}

	cmd.PreRunE = addAPITargetFlag(cmd, &apiTarget)

	return cmd
}

func runEnhance(apiTarget, id string) error {
	data, err := callCurator(apiTarget, "/api/curator/enhance", map[string]any{"id": id})
	if err != nil {
		return err
	}

	var result curator.EnhanceResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decoding enhance result: %w", err)
	}

	fmt.Printf("\n  %s Enhanced %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(result.ID))
	if result.TitleAdded {
		fmt.Println("    added title")
	}
	if result.TechnologiesAdded {
		fmt.Println("    added technologies")
	}
	if result.ComplexityAdded {
		fmt.Println("    added complexity")
	}
	fmt.Printf("    quality %.3f -> %.3f\n\n", result.QualityBefore, result.QualityAfter)

	return nil
}
