package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every installed package across all scopes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		st := &store.Store{ProjectDir: wd}
		installed, err := st.ListInstalled()
		if err != nil {
			pterm.Error.Printf("Failed to list installed packages: %v\n", err)
			return
		}
		if len(installed) == 0 {
			pterm.Info.Println("Nothing installed")
			return
		}
		data := pterm.TableData{{"Package", "Version", "Scope", "Reason"}}
		for _, m := range installed {
			data = append(data, []string{m.Name, m.Version, string(m.Scope), m.Reason})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}
