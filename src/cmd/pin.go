package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/channel"
	"github.com/zoi-pm/zoi/src/internal/paths"
)

var pinCmd = &cobra.Command{
	Use:   "pin <name> <version>",
	Short: "Pin a package to an exact version, bypassing channel resolution on future installs and upgrades",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()
		name, version := args[0], args[1]

		pins, err := channel.LoadPinStore(paths.PinsFile(scope, wd))
		if err != nil {
			pterm.Error.Printf("Failed to load pins: %v\n", err)
			return
		}
		pins.Pin(name, version)
		if err := savePins(scope, wd, pins); err != nil {
			pterm.Error.Printf("Failed to save pin: %v\n", err)
			return
		}
		pterm.Success.Printf("%s pinned to %s\n", name, version)
	},
}

func init() {
	pinCmd.Flags().StringVar(&scopeFlag, "scope", "user", "installation scope: user, system, or project")
}
