package cmd

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/store"
)

var autoremoveCmd = &cobra.Command{
	Use:   "autoremove",
	Short: "Remove installed packages that were pulled in only as dependencies and are no longer referenced",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()

		st := &store.Store{ProjectDir: wd}
		candidates, err := st.AutoremoveCandidates(scope)
		if err != nil {
			pterm.Error.Printf("Failed to compute autoremove candidates: %v\n", err)
			return
		}
		if len(candidates) == 0 {
			pterm.Info.Println("Nothing to autoremove")
			return
		}

		names := make([]string, 0, len(candidates))
		for _, m := range candidates {
			names = append(names, m.Name)
		}
		pterm.Info.Printf("Candidates: %s\n", names)
		if !yesFlag {
			confirmed, _ := pterm.DefaultInteractiveConfirm.Show("Remove all of these?")
			if !confirmed {
				pterm.Info.Println("Aborted")
				return
			}
		}

		e, err := buildEngine(scope, wd)
		if err != nil {
			pterm.Error.Printf("Failed to prepare autoremove: %v\n", err)
			return
		}
		for _, m := range candidates {
			if err := e.Uninstall(context.Background(), m.Name); err != nil {
				pterm.Error.Printf("Failed to remove %s: %v\n", m.Name, err)
				continue
			}
			pterm.Success.Printf("%s removed\n", m.Name)
		}
	},
}

func init() {
	autoremoveCmd.Flags().StringVar(&scopeFlag, "scope", "user", "installation scope: user, system, or project")
	autoremoveCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
}
