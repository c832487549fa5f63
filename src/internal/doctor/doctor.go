// Package doctor scans an installation for latent problems: broken
// bin symlinks, dangling latest pointers, unwritable store roots, PATH
// misconfiguration, and transactions left open by an interrupted run.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zoi-pm/zoi/src/internal/journal"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
)

// Finding is one diagnostic result; a report with no findings means
// every check passed.
type Finding struct {
	Check   string
	Message string
}

// Report is the full result of a doctor run.
type Report struct {
	Findings []Finding
}

func (r *Report) add(check, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Check: check, Message: fmt.Sprintf(format, args...)})
}

// Run executes every check across all three scopes for projectDir and
// returns a report; an empty Findings slice means a clean bill of
// health.
func Run(projectDir string) (*Report, error) {
	report := &Report{}

	scopes := []model.Scope{model.ScopeUser, model.ScopeSystem, model.ScopeProject}

	for _, scope := range scopes {
		checkBrokenSymlinks(report, scope, projectDir)
		checkStoreWritable(report, scope, projectDir)
		checkLatestPointers(report, scope, projectDir)
	}

	checkPathConfiguration(report, projectDir)
	checkOpenTransactions(report, projectDir)

	return report, nil
}

// checkBrokenSymlinks scans every scope's bin root for dangling
// symlinks.
func checkBrokenSymlinks(report *Report, scope model.Scope, projectDir string) {
	root := paths.BinRoot(scope, projectDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		full := filepath.Join(root, e.Name())
		info, lerr := os.Lstat(full)
		if lerr != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		if _, statErr := os.Stat(full); os.IsNotExist(statErr) {
			report.add("broken_symlink", "%s: broken symlink at %s", scope, full)
		}
	}
}

// checkStoreWritable confirms the scope's store root exists and
// accepts a throwaway write, catching permission drift early.
func checkStoreWritable(report *Report, scope model.Scope, projectDir string) {
	root := paths.StoreRoot(scope, projectDir)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return
	}
	probe := filepath.Join(root, ".zoi-doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		report.add("store_not_writable", "%s: store root %s is not writable: %v", scope, root, err)
		return
	}
	_ = os.Remove(probe)
}

// checkLatestPointers walks every package directory under a scope's
// store root and flags a `latest` pointer that no longer resolves.
func checkLatestPointers(report *Report, scope model.Scope, projectDir string) {
	root := paths.StoreRoot(scope, projectDir)
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Name() != "latest" {
			return nil
		}
		if _, statErr := os.Stat(p); os.IsNotExist(statErr) {
			report.add("dangling_latest", "%s: latest pointer %s does not resolve", scope, p)
		}
		return nil
	})
}

// checkPathConfiguration reports when the user-scope bin root exists
// but isn't on PATH.
func checkPathConfiguration(report *Report, projectDir string) {
	binRoot := paths.BinRoot(model.ScopeUser, projectDir)
	if _, err := os.Stat(binRoot); os.IsNotExist(err) {
		return
	}
	pathVar := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(pathVar) {
		if entry == binRoot {
			return
		}
	}
	report.add("path_missing", "zoi's user binary directory (%s) is not in your PATH", binRoot)
}

// checkOpenTransactions scans for still-Open transactions; any hit
// means a prior run was interrupted before commit or rollback.
func checkOpenTransactions(report *Report, projectDir string) {
	for _, scope := range []model.Scope{model.ScopeUser, model.ScopeSystem, model.ScopeProject} {
		j := &journal.Journal{Dir: paths.TransactionsDir(scope, projectDir)}
		open, err := j.Recover()
		if err != nil || len(open) == 0 {
			continue
		}
		for _, tx := range open {
			report.add("open_transaction", "%s: transaction %s was left open; run rollback to recover", scope, tx.ID())
		}
	}
}
