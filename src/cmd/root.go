// Package cmd implements zoi's thin cobra CLI: every command here does
// argument parsing, engine wiring, and pterm-rendered output, and
// nothing else — the install/resolve/plan/verify/build semantics all
// live in internal/engine and the packages it coordinates.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

var cfgFile string
var profileEnabled bool
var profileDir string

var rootCmd = &cobra.Command{
	Use:   "zoi",
	Short: "zoi is a cross-platform package manager with a resumable, signed, atomic install pipeline",
	Long: `zoi resolves package definitions from one or more registries, plans each
install as either a verified prebuilt download or a from-source build,
and applies the whole batch under one journaled transaction so a crash
or a failed verification step leaves the system exactly as it found it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !profileEnabled {
			return nil
		}
		dir := strings.TrimSpace(profileDir)
		if dir == "" {
			dir = filepath.Join(paths.MustDataRoot(model.ScopeUser, ""), "profiles")
		}
		info, err := telemetry.Start(dir)
		if err != nil {
			return err
		}
		telemetry.Event(
			"command.start",
			"command", cmd.CommandPath(),
			"args_count", len(args),
			"config", viper.ConfigFileUsed(),
		)
		fmt.Printf("Profiling enabled.\nLogs: %s\nCPU: %s\nHeap: %s\n", info.LogPath, info.CPUPath, info.HeapPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if !profileEnabled {
			return
		}
		telemetry.Event("command.stop", "command", cmd.CommandPath())
		if _, err := telemetry.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush profiling artifacts: %v\n", err)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is zoi's scoped config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&profileEnabled, "profile", false, "collect CPU/heap profiles and structured timing logs")
	rootCmd.PersistentFlags().StringVar(&profileDir, "profile-dir", "", "directory for profiling artifacts (default: <data-root>/profiles)")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(whyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(unpinCmd)
	rootCmd.AddCommand(autoremoveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile(paths.ConfigFile(model.ScopeUser, ""))
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		// Config file found and read.
	}
}
