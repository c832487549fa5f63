package cmd

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/store"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <name>",
	Aliases: []string{"remove"},
	Short:   "Remove an installed package, swinging latest back to the prior version",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()
		name := args[0]

		e, err := buildEngine(scope, wd)
		if err != nil {
			pterm.Error.Printf("Failed to prepare uninstall: %v\n", err)
			return
		}

		if !forceFlag {
			st := &store.Store{ProjectDir: wd}
			dependents, derr := st.Dependents(scope, name)
			if derr == nil && len(dependents) > 0 {
				pterm.Warning.Printf("%s is still required by: %s\n", name, dependents)
				confirmed, _ := pterm.DefaultInteractiveConfirm.Show("Remove it anyway?")
				if !confirmed {
					pterm.Info.Println("Aborted")
					return
				}
			}
		}

		spinner, _ := pterm.DefaultSpinner.Start("Removing " + name)
		if err := e.Uninstall(context.Background(), name); err != nil {
			spinner.Fail(err.Error())
			os.Exit(exitCodeFor(err))
		}
		spinner.Success(name + " removed")
	},
}

func init() {
	uninstallCmd.Flags().StringVar(&scopeFlag, "scope", "user", "installation scope: user, system, or project")
	uninstallCmd.Flags().BoolVar(&forceFlag, "force", false, "remove even if other installed packages still depend on it")
}
