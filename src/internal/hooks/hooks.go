// Package hooks runs a package's declared lifecycle hooks: shell
// command lists keyed by hook kind and platform, any non-zero exit
// aborting the run.
package hooks

import (
	"bytes"
	"os/exec"
	"runtime"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

// Kind is one of the six lifecycle points hooks can attach to.
type Kind string

const (
	PreInstall  Kind = "pre_install"
	PostInstall Kind = "post_install"
	PreUpgrade  Kind = "pre_upgrade"
	PostUpgrade Kind = "post_upgrade"
	PreRemove   Kind = "pre_remove"
	PostRemove  Kind = "post_remove"
)

// Run executes every command configured for kind on the current
// platform, falling back to a "default" platform key when present.
// The first non-zero exit is fatal: a failing hook is a rollback
// trigger, not a warning.
func Run(h model.Hooks, kind Kind, pkgName string) error {
	byPlatform := commandsFor(h, kind)
	if byPlatform == nil {
		return nil
	}

	done := telemetry.StartSpan("hooks.run", "package", pkgName, "kind", string(kind))
	var err error
	defer func() {
		if err != nil {
			done("status", "error", "error", err.Error())
		} else {
			done("status", "ok")
		}
	}()

	platform := runtime.GOOS
	cmds, ok := byPlatform[platform]
	if !ok {
		cmds, ok = byPlatform["default"]
	}
	if !ok {
		return nil
	}

	for _, cmdStr := range cmds {
		if runErr := runCommand(pkgName, cmdStr); runErr != nil {
			err = runErr
			return err
		}
	}
	return nil
}

func commandsFor(h model.Hooks, kind Kind) map[string][]string {
	switch kind {
	case PreInstall:
		return h.PreInstall
	case PostInstall:
		return h.PostInstall
	case PreUpgrade:
		return h.PreUpgrade
	case PostUpgrade:
		return h.PostUpgrade
	case PreRemove:
		return h.PreRemove
	case PostRemove:
		return h.PostRemove
	default:
		return nil
	}
}

func runCommand(pkgName, cmdStr string) error {
	shell, flag := "bash", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "pwsh", "-Command"
	}
	cmd := exec.Command(shell, flag, cmdStr)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return errs.Newf(errs.Hook, pkgName, "hook command %q failed: %v: %s", cmdStr, err, combined.String())
	}
	return nil
}
