package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Scan for broken symlinks, dangling latest pointers, PATH misconfiguration, and open transactions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		report, err := doctor.Run(wd)
		if err != nil {
			pterm.Error.Printf("Doctor run failed: %v\n", err)
			os.Exit(1)
		}
		if len(report.Findings) == 0 {
			pterm.Success.Println("No issues found")
			return
		}
		for _, f := range report.Findings {
			pterm.Warning.Printf("[%s] %s\n", f.Check, f.Message)
		}
		os.Exit(1)
	},
}
