package cmd

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade <identifier>...",
	Short: "Install the latest resolvable version of a package alongside the current one, then swing latest",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()

		e, err := buildEngine(scope, wd)
		if err != nil {
			pterm.Error.Printf("Failed to prepare upgrade: %v\n", err)
			return
		}
		e.Chooser = installChooser()

		spinner, _ := pterm.DefaultSpinner.Start("Resolving and planning upgrade")
		result, err := e.Upgrade(context.Background(), args)
		if err != nil {
			spinner.Fail(err.Error())
			os.Exit(exitCodeFor(err))
		}
		spinner.Success("Upgrade complete")
		for _, m := range result.Installed {
			pterm.Success.Printf("%s upgraded to %s\n", m.Name, m.Version)
		}
		pterm.Success.Printf("Transaction %s committed\n", result.TransactionID)
	},
}

func init() {
	addCommonInstallFlags(upgradeCmd)
}
