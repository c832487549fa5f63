package cmd

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <identifier>...",
	Short: "Resolve, plan, verify, and install one or more packages",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		scope := resolveScope()

		e, err := buildEngine(scope, wd)
		if err != nil {
			pterm.Error.Printf("Failed to prepare install: %v\n", err)
			return
		}
		e.Chooser = installChooser()

		spinner, _ := pterm.DefaultSpinner.Start("Resolving and planning")
		result, err := e.Install(context.Background(), args)
		if err != nil {
			spinner.Fail(err.Error())
			os.Exit(exitCodeFor(err))
		}
		spinner.Success("Install complete")

		for _, skip := range result.Skipped {
			pterm.Info.Printf("%s already satisfied at %s, skipping\n", skip.Name, skip.Version)
		}
		if result.DownloadBytes > 0 {
			pterm.Info.Printf("Downloaded %d bytes of prebuilt archives\n", result.DownloadBytes)
		}
		data := pterm.TableData{{"Package", "Version", "Scope"}}
		for _, m := range result.Installed {
			data = append(data, []string{m.Name, m.Version, string(m.Scope)})
		}
		if len(result.Installed) > 0 {
			_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		}
		pterm.Success.Printf("Transaction %s committed\n", result.TransactionID)
	},
}

func init() {
	addCommonInstallFlags(installCmd)
}
