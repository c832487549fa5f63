package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/store"
)

var whyCmd = &cobra.Command{
	Use:   "why <name>",
	Short: "List installed packages that depend on name",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()
		name := args[0]

		st := &store.Store{ProjectDir: wd}
		dependents, err := st.Dependents(scope, name)
		if err != nil {
			pterm.Error.Printf("Failed to compute dependents: %v\n", err)
			return
		}
		if len(dependents) == 0 {
			pterm.Info.Printf("Nothing installed in scope %q depends on %s\n", scope, name)
			return
		}
		for _, d := range dependents {
			pterm.Println(d)
		}
	},
}

func init() {
	whyCmd.Flags().StringVar(&scopeFlag, "scope", "user", "installation scope: user, system, or project")
}
