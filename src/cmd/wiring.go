package cmd

import (
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zoi-pm/zoi/src/internal/channel"
	"github.com/zoi-pm/zoi/src/internal/config"
	"github.com/zoi-pm/zoi/src/internal/engine"
	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
	"github.com/zoi-pm/zoi/src/internal/graph"
	"github.com/zoi-pm/zoi/src/internal/plan"
	"github.com/zoi-pm/zoi/src/internal/registry"
	"github.com/zoi-pm/zoi/src/internal/security"
	"github.com/zoi-pm/zoi/src/internal/store"
	"github.com/zoi-pm/zoi/src/internal/verify"
)

var (
	scopeFlag string
	yesFlag   bool
	forceFlag bool
	buildFlag bool
)

// addCommonInstallFlags wires the scope/yes/force/build flags shared
// by install and upgrade.
func addCommonInstallFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&scopeFlag, "scope", "user", "installation scope: user, system, or project")
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "answer every optional-dependency prompt automatically")
	cmd.Flags().BoolVar(&forceFlag, "force", false, "reinstall even if already satisfied, overriding the already-installed skip")
	cmd.Flags().BoolVar(&buildFlag, "build", false, "build from source even when a prebuilt archive is available")
}

// resolveScope maps the --scope flag onto model.Scope, defaulting to
// user scope on anything unrecognized.
func resolveScope() model.Scope {
	switch strings.ToLower(scopeFlag) {
	case "system":
		return model.ScopeSystem
	case "project":
		return model.ScopeProject
	default:
		return model.ScopeUser
	}
}

// mirrorTableFromInstallation folds a definition's `installation` list
// into the planner's MirrorTable callback: every pre-compiled entry
// contributes its URL as a mirror template, its checksums/sigs fields
// as the hash/signature URLs. Platform filtering already narrowed
// which entries apply before the planner ever sees this node.
func mirrorTableFromInstallation(node *model.InstallNode) (templates []string, hashURL, pgpURL, sizeURL string, ok bool) {
	for _, m := range node.Package.Installation {
		if m.InstallType != string(model.FormPreCompiled) && m.InstallType != "prebuilt" && m.InstallType != "binary" {
			continue
		}
		if m.URL == "" {
			continue
		}
		templates = append(templates, m.URL)
		if hashURL == "" {
			hashURL = m.Checksums
		}
		if pgpURL == "" {
			pgpURL = m.Sigs
		}
	}
	return templates, hashURL, pgpURL, "", len(templates) > 0
}

// buildEngine assembles one Engine for the given scope from the
// scope's persisted config, registry list, pin store, and keystore.
func buildEngine(scope model.Scope, projectDir string) (*engine.Engine, error) {
	cfg, _, err := config.LoadOrCreate(scope, projectDir)
	if err != nil {
		return nil, err
	}

	added := make([]string, 0, len(cfg.Registries))
	for handle := range cfg.Registries {
		added = append(added, handle)
	}

	pins, err := channel.LoadPinStore(paths.PinsFile(scope, projectDir))
	if err != nil {
		return nil, err
	}

	resolver := &registry.Resolver{
		Scope:      scope,
		ProjectDir: projectDir,
		Registries: registry.RegistryList{
			DefaultRepos: []string{cfg.DefaultRegistry},
			Added:        added,
		},
	}

	st := &store.Store{ProjectDir: projectDir}
	keystore := security.NewKeystore(paths.PGPDir(scope, projectDir))
	planner := &plan.Planner{MirrorTable: mirrorTableFromInstallation}

	homeDir, _ := os.UserHomeDir()

	e := &engine.Engine{
		Scope:      scope,
		ProjectDir: projectDir,
		HomeDir:    homeDir,
		Resolver:   resolver,
		Pins:       pins,
		Store:      st,
		Planner:    planner,
		Keystore:   keystore,
		SigPolicy: verify.SignaturePolicy{
			Enable:      cfg.SignatureEnforcement.Enable,
			TrustedKeys: resolveTrustedKeys(keystore, cfg.SignatureEnforcement.TrustedKeys),
		},
		RollbackEnabled: cfg.RollbackEnabled,
		ForceBuild:      buildFlag,
		Force:           forceFlag,
		ShowProgress:    true,
		Workers:         cfg.ParallelJobs,
	}
	return e, nil
}

// resolveTrustedKeys expands config-declared trusted-key references
// (40-hex fingerprints already cached locally) into armored blocks.
// An entry not yet cached is skipped here; it is still honored at
// per-maintainer verification time through direct Keystore lookups.
func resolveTrustedKeys(ks *security.Keystore, refs []string) []string {
	var out []string
	for _, ref := range refs {
		if armored, ok := ks.Load(strings.ToUpper(ref)); ok {
			out = append(out, armored)
		}
	}
	return out
}

// exitCodeFor maps an engine error onto the process exit status
// every command reports through.
func exitCodeFor(err error) int {
	code := errs.ExitCode(err)
	if code == 0 {
		return 1
	}
	return code
}

func savePins(scope model.Scope, projectDir string, pins *channel.PinStore) error {
	return pins.Save(paths.PinsFile(scope, projectDir))
}

// installChooser returns the non-interactive AutoYes chooser under
// --yes, otherwise a pterm-backed chooser that prompts on the
// terminal. This is the only place in the codebase allowed to own
// prompt/IO; the internal packages never prompt.
func installChooser() graph.OptionChooser {
	if yesFlag {
		return graph.AutoYes{}
	}
	return ptermChooser{}
}

type ptermChooser struct{}

func (ptermChooser) ChooseRequired(pkgName string, group model.OptionGroup) (string, error) {
	if len(group.Members) == 0 {
		return "", errs.Newf(errs.Plan, pkgName, "required option group %q has no members", group.Name)
	}
	if len(group.Members) == 1 {
		return group.Members[0], nil
	}
	choice, _ := pterm.DefaultInteractiveSelect.
		WithDefaultText(pkgName + ": choose " + group.Name).
		WithOptions(group.Members).
		Show()
	if choice == "" {
		return group.Members[0], nil
	}
	return choice, nil
}

func (ptermChooser) ChooseOptional(pkgName string, group model.OptionGroup) ([]string, error) {
	if len(group.Members) == 0 {
		return nil, nil
	}
	chosen, _ := pterm.DefaultInteractiveMultiselect.
		WithDefaultText(pkgName + ": include optional " + group.Name).
		WithOptions(group.Members).
		Show()
	return chosen, nil
}
