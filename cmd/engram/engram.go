// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/engramhq/engram/cmd/engram/add"
	browsecmder "github.com/engramhq/engram/cmd/engram/browse"
	configcmder "github.com/engramhq/engram/cmd/engram/config"
	curatecmder "github.com/engramhq/engram/cmd/engram/curate"
	hookcmder "github.com/engramhq/engram/cmd/engram/hook"
	searchcmder "github.com/engramhq/engram/cmd/engram/search"
	servecmder "github.com/engramhq/engram/cmd/engram/serve"
	versioncmder "github.com/engramhq/engram/cmd/engram/version"
)

const engramLongDesc string = `Engram is a persistent semantic memory layer for coding sessions.

Run the engine with:
  engram serve         Run the memory engine and HTTP API

Work with stored memories:
  engram search        Semantic search over stored memories
  engram add           Store a new memory
  engram browse        Browse memories in an interactive TUI
  engram curate        Deduplicate, consolidate, archive and enhance memories

Wire engram into an agent session:
  engram hook          Deliver a session lifecycle event to the engine`

const engramShortDesc string = "Engram - Session Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory containing the .engram config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(browsecmder.NewBrowseCmd())
	cmd.AddCommand(curatecmder.NewCurateCmd())
	cmd.AddCommand(hookcmder.NewHookCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
