// Package paths lays out the persisted state under each scope's data
// root: store, bin, cache, transactions, pgps, registry clones, and
// the scoped config file.
package paths

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/zoi-pm/zoi/src/internal/model"
)

// DataRoot returns the base data root for scope. User and System are
// machine-wide roots; Project is the current working directory's
// `.zoi/`.
func DataRoot(scope model.Scope, projectDir string) (string, error) {
	switch scope {
	case model.ScopeProject:
		if projectDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			projectDir = wd
		}
		return filepath.Join(projectDir, ".zoi"), nil
	case model.ScopeSystem:
		if runtime.GOOS == "windows" {
			return `C:\ProgramData\zoi`, nil
		}
		return "/var/lib/zoi", nil
	default: // ScopeUser
		if runtime.GOOS == "windows" {
			if local := os.Getenv("LOCALAPPDATA"); local != "" {
				return filepath.Join(local, "zoi"), nil
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, "AppData", "Local", "zoi"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "zoi"), nil
	}
}

// MustDataRoot is DataRoot with a "zoi"-relative fallback on error,
// for non-fatal call sites that need a best-effort path.
func MustDataRoot(scope model.Scope, projectDir string) string {
	root, err := DataRoot(scope, projectDir)
	if err != nil {
		return "zoi-" + string(scope)
	}
	return root
}

func StoreRoot(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "store")
}

func PackageDir(scope model.Scope, projectDir, registryHandle, repo, name string) string {
	return filepath.Join(StoreRoot(scope, projectDir), registryHandle, repo, name)
}

func VersionDir(scope model.Scope, projectDir, registryHandle, repo, name, version string) string {
	return filepath.Join(PackageDir(scope, projectDir, registryHandle, repo, name), version)
}

func LatestPointer(scope model.Scope, projectDir, registryHandle, repo, name string) string {
	return filepath.Join(PackageDir(scope, projectDir, registryHandle, repo, name), "latest")
}

func BinRoot(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "bin")
}

func CacheDir(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "cache", "archives")
}

func TransactionsDir(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "transactions")
}

func PGPDir(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "pgps")
}

// PinsFile is the pinned-version record, scoped like every other
// piece of persisted state.
func PinsFile(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "pinned.json")
}

// GlobalRecordPath is the append-only record of every install and
// uninstall transaction, one JSON line each, kept for reporting.
func GlobalRecordPath(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "install-record.jsonl")
}

func ConfigFile(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "config.yaml")
}

func RegistryRoot(scope model.Scope, projectDir, handle string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "pkgs", "db", handle)
}

func LockfilePath(projectDir string) string {
	if projectDir == "" {
		projectDir, _ = os.Getwd()
	}
	return filepath.Join(projectDir, "zoi.lock")
}

func InstallLockPath(scope model.Scope, projectDir string) string {
	return filepath.Join(MustDataRoot(scope, projectDir), "install.lock")
}

func EnsureDataRoot(scope model.Scope, projectDir string) error {
	root := MustDataRoot(scope, projectDir)
	for _, sub := range []string{"store", "bin", "cache/archives", "transactions", "pgps", "pkgs/db"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}
