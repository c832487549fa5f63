package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/channel"
	"github.com/zoi-pm/zoi/src/internal/paths"
)

var unpinCmd = &cobra.Command{
	Use:   "unpin <name>",
	Short: "Remove a package's version pin, re-enabling channel resolution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()
		name := args[0]

		pins, err := channel.LoadPinStore(paths.PinsFile(scope, wd))
		if err != nil {
			pterm.Error.Printf("Failed to load pins: %v\n", err)
			return
		}
		if !pins.IsPinned(name) {
			pterm.Info.Printf("%s is not pinned\n", name)
			return
		}
		pins.Unpin(name)
		if err := savePins(scope, wd, pins); err != nil {
			pterm.Error.Printf("Failed to save pin removal: %v\n", err)
			return
		}
		pterm.Success.Printf("%s unpinned\n", name)
	},
}

func init() {
	unpinCmd.Flags().StringVar(&scopeFlag, "scope", "user", "installation scope: user, system, or project")
}
