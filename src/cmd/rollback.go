package cmd

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Recover any transaction left open by an interrupted install or uninstall",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()

		e, err := buildEngine(scope, wd)
		if err != nil {
			pterm.Error.Printf("Failed to prepare rollback: %v\n", err)
			return
		}

		recovered, err := e.Rollback(context.Background())
		if err != nil {
			pterm.Error.Printf("Rollback failed: %v\n", err)
			os.Exit(exitCodeFor(err))
		}
		if recovered == 0 {
			pterm.Info.Println("No open transactions found")
			return
		}
		pterm.Success.Printf("Recovered %d open transaction(s)\n", recovered)
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&scopeFlag, "scope", "user", "installation scope: user, system, or project")
}
