// Package versioncmder provides the version command.
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/utils"
)

const versionShortDesc string = "Print version information"

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: versionShortDesc,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("engram %s (%s, built %s)\n", utils.Version, utils.Sha, utils.Buildtime)
		},
	}
}
