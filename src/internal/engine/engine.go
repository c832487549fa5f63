// Package engine wires the resolver, graph builder, planner, conflict
// checker, verifier, builder, installer, journal, and store into the
// top-level Install/Uninstall/Upgrade/Rollback operations: resolve,
// plan, fetch or build, check conflicts, then fan the installs out
// under a worker pool with every step journaled.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zoi-pm/zoi/src/internal/build"
	"github.com/zoi-pm/zoi/src/internal/cache"
	"github.com/zoi-pm/zoi/src/internal/channel"
	"github.com/zoi-pm/zoi/src/internal/conflict"
	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/graph"
	"github.com/zoi-pm/zoi/src/internal/hooks"
	"github.com/zoi-pm/zoi/src/internal/installer"
	"github.com/zoi-pm/zoi/src/internal/journal"
	"github.com/zoi-pm/zoi/src/internal/lock"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/orchestrator"
	"github.com/zoi-pm/zoi/src/internal/paths"
	"github.com/zoi-pm/zoi/src/internal/plan"
	"github.com/zoi-pm/zoi/src/internal/registry"
	"github.com/zoi-pm/zoi/src/internal/security"
	"github.com/zoi-pm/zoi/src/internal/store"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
	"github.com/zoi-pm/zoi/src/internal/verify"
)

// Engine bundles every component the install/uninstall/upgrade/
// rollback operations need.
type Engine struct {
	Scope      model.Scope
	ProjectDir string
	HomeDir    string

	Resolver  *registry.Resolver
	Pins      *channel.PinStore
	Store     *store.Store
	Planner   *plan.Planner
	Keystore  *security.Keystore
	SigPolicy verify.SignaturePolicy
	// Chooser resolves required-option and optional-dependency groups
	// during graph construction. A nil Chooser defaults to
	// graph.AutoYes{}, the non-interactive behavior of --yes.
	Chooser graph.OptionChooser

	RollbackEnabled bool
	ForceBuild      bool
	Force           bool
	ShowProgress    bool

	Workers int
}

// Result summarizes one Install/Upgrade run for the CLI collaborator.
type Result struct {
	TransactionID string
	Installed     []*model.InstallManifest
	Skipped       []graph.Skip
	// DownloadBytes is the advertised total download size across all
	// prebuilt nodes, 0 when no size URLs were declared.
	DownloadBytes int64
}

func (e *Engine) cacheStore() (*cache.Store, error) {
	return cache.New(paths.CacheDir(e.Scope, e.ProjectDir))
}

func (e *Engine) journal() *journal.Journal {
	return &journal.Journal{Dir: paths.TransactionsDir(e.Scope, e.ProjectDir)}
}

func (e *Engine) conflictChecker() *conflict.Checker {
	return &conflict.Checker{
		Index: conflict.InstalledIndex{
			HasManifest:    e.Store.HasManifest,
			OwnerOfBin:     e.Store.OwnerOfBin,
			OwnerOfVirtual: e.Store.OwnerOfVirtual,
		},
		BinRoot: func(scope model.Scope) string { return paths.BinRoot(scope, e.ProjectDir) },
	}
}

// Install runs the end-to-end install flow for the given root
// identifiers: build the dependency graph, plan each node, fetch or
// build every archive, run conflict checks, then install stage by
// stage under the orchestrator, journaling every step and recording
// manifests.
func (e *Engine) Install(ctx context.Context, roots []string) (result *Result, retErr error) {
	done := telemetry.StartSpan("engine.install", "scope", string(e.Scope), "roots", len(roots))
	defer func() {
		if retErr != nil {
			done("status", "error", "error", retErr.Error())
		} else {
			done("status", "ok")
		}
	}()

	fl, lockErr := lock.Acquire(paths.InstallLockPath(e.Scope, e.ProjectDir))
	if lockErr != nil {
		retErr = lockErr
		return nil, retErr
	}
	defer fl.Release()

	chooser := e.Chooser
	if chooser == nil {
		chooser = graph.AutoYes{}
	}
	builder := &graph.Builder{
		Resolver:      e.Resolver,
		Pins:          e.Pins,
		Installed:     e.Store,
		Chooser:       chooser,
		ForceBuild:    e.ForceBuild,
		Force:         e.Force,
		ScopeOverride: &e.Scope,
	}
	g, err := builder.Build(roots)
	if err != nil {
		retErr = err
		return nil, retErr
	}

	stages, cycle, err := g.Stages()
	if err != nil {
		retErr = err
		return nil, retErr
	}
	if len(cycle) > 0 {
		retErr = errs.Newf(errs.Cycle, "", "dependency cycle among: %v", cycle)
		return nil, retErr
	}

	builtPlan, err := e.Planner.Build(g.Nodes, stages)
	if err != nil {
		retErr = err
		return nil, retErr
	}

	// Sizes are advisory: a dead size URL shouldn't block an install
	// whose archive mirror is healthy.
	downloadBytes, sizeErr := e.Planner.FetchSizes(builtPlan)
	if sizeErr != nil {
		telemetry.Event("plan.fetch_sizes_failed", "error", sizeErr.Error())
		downloadBytes = 0
	}

	cacheStore, err := e.cacheStore()
	if err != nil {
		retErr = err
		return nil, retErr
	}

	buildRoot := filepath.Join(paths.MustDataRoot(e.Scope, e.ProjectDir), "build")
	if err := os.MkdirAll(buildRoot, 0o755); err != nil {
		retErr = errs.New(errs.Filesystem, "", err)
		return nil, retErr
	}
	builder8 := &build.Builder{WorkRoot: buildRoot}

	// Every node's archive is fetched or built up front, before any
	// conflict check or worker runs, so CheckFiles can dry-extract it
	// against a filesystem no worker has touched yet.
	archivePaths := make(map[string]string, len(builtPlan.Nodes))
	for id, np := range builtPlan.Nodes {
		archivePath, err := e.fetchOrBuild(np, np.Node, cacheStore, builder8)
		if err != nil {
			retErr = err
			return nil, retErr
		}
		archivePaths[id] = archivePath
	}

	checker := e.conflictChecker()
	for id, np := range builtPlan.Nodes {
		for _, c := range checker.CheckName(np.Node) {
			retErr = errs.Newf(errs.Conflict, np.Node.Package.Name, "%s: %s (%s)", id, c.Detail, c.Existing)
			return nil, retErr
		}
		for _, c := range checker.CheckBinaryAndVirtual(np.Node) {
			retErr = errs.Newf(errs.Conflict, np.Node.Package.Name, "%s: %s (%s)", id, c.Detail, c.Existing)
			return nil, retErr
		}
		chosenSubs := map[string]bool{}
		if np.Node.SubPackage != "" {
			chosenSubs[np.Node.SubPackage] = true
		}
		fileConflicts, err := checker.CheckFiles(np.Node, archivePaths[id], chosenSubs, e.HomeDir)
		if err != nil {
			retErr = err
			return nil, retErr
		}
		for _, c := range fileConflicts {
			retErr = errs.Newf(errs.Conflict, np.Node.Package.Name, "%s: %s (%s)", id, c.Detail, c.Existing)
			return nil, retErr
		}
	}

	installedBefore, err := e.Store.ListInstalled()
	if err != nil {
		retErr = err
		return nil, retErr
	}

	// Project lockfile drift: when zoi.lock already exists,
	// verify it against the state that exists before this install
	// touches anything. Checking here, rather than after commit,
	// means a package newly added by this very call is never flagged
	// as "missing from the lockfile" against a lock that predates it.
	if e.Scope == model.ScopeProject {
		if _, statErr := os.Stat(paths.LockfilePath(e.ProjectDir)); statErr == nil {
			existingLock, lockErr := store.LoadProjectLock(e.ProjectDir)
			if lockErr != nil {
				retErr = lockErr
				return nil, retErr
			}
			if verifyErr := e.Store.VerifyAgainstLock(existingLock); verifyErr != nil {
				retErr = verifyErr
				return nil, retErr
			}
		}
	}

	tx, err := e.journal().Begin(installedBefore)
	if err != nil {
		retErr = err
		return nil, retErr
	}

	ins := &installer.Installer{ProjectDir: e.ProjectDir, HomeDir: e.HomeDir}

	var mu sync.Mutex
	var installedManifests []*model.InstallManifest

	orch := &orchestrator.Orchestrator{Workers: e.Workers}
	runErr := orch.Run(ctx, g, func(stageCtx context.Context, pkgID string) error {
		np := builtPlan.Nodes[pkgID]
		node := np.Node

		key := journal.PackageKey{Scope: e.Scope, RegistryHandle: node.RegistryHandle, Repo: node.Package.Repo, Name: node.Package.Name}
		isUpgrade := false
		if existing, ok := e.Store.FindInstalled(e.Scope, node.RegistryHandle, node.Package.Repo, node.Package.Name); ok {
			tx.RegisterPreState(key, existing)
			isUpgrade = true
		} else {
			tx.RegisterPreState(key, nil)
		}

		preHook, postHook := hooks.PreInstall, hooks.PostInstall
		if isUpgrade {
			preHook, postHook = hooks.PreUpgrade, hooks.PostUpgrade
		}

		if err := hooks.Run(node.Package.Hooks, preHook, node.Package.Name); err != nil {
			return err
		}

		archivePath := archivePaths[pkgID]

		res, err := ins.Install(node, archivePath, e.Scope, node.RegistryHandle, string(np.Action))
		if err != nil {
			return err
		}

		if err := tx.RecordInstall(res.Manifest); err != nil {
			return err
		}
		if res.PreviousLatest != "" {
			tx.DeferCleanup(key)
		}

		if err := hooks.Run(node.Package.Hooks, postHook, node.Package.Name); err != nil {
			return err
		}

		mu.Lock()
		installedManifests = append(installedManifests, res.Manifest)
		mu.Unlock()
		return nil
	})

	if runErr != nil {
		rollback(e, tx)
		retErr = runErr
		return nil, retErr
	}

	commitErr := tx.Commit(e.RollbackEnabled, func(key journal.PackageKey, keep int) error {
		return pruneOldVersions(e, key, keep)
	})
	if commitErr != nil {
		retErr = commitErr
		return nil, retErr
	}

	if e.Scope == model.ScopeProject {
		if lockErr := e.saveProjectLock(); lockErr != nil {
			retErr = lockErr
			return nil, retErr
		}
	}

	recordPath := paths.GlobalRecordPath(e.Scope, e.ProjectDir)
	for _, m := range installedManifests {
		if recErr := e.Store.AppendGlobalRecord(recordPath, tx.ID(), "install", m); recErr != nil {
			telemetry.Event("store.global_record_failed", "error", recErr.Error())
			break
		}
	}

	sort.Slice(installedManifests, func(i, j int) bool { return installedManifests[i].Name < installedManifests[j].Name })
	result = &Result{TransactionID: tx.ID(), Installed: installedManifests, Skipped: g.Skips, DownloadBytes: downloadBytes}
	return result, nil
}

// saveProjectLock rebuilds zoi.lock from every currently-installed
// project-scope manifest, the write half of the lockfile round trip
// (the read/verify half runs earlier in Install, against the state
// that existed before this call mutated anything).
func (e *Engine) saveProjectLock() error {
	installed, err := e.Store.ListInstalled()
	if err != nil {
		return err
	}

	lock := model.NewProjectLock()
	for _, m := range installed {
		if m.Scope != model.ScopeProject {
			continue
		}
		fullID := projectLockID(m)
		latest := paths.LatestPointer(model.ScopeProject, e.ProjectDir, m.RegistryHandle, m.Repo, m.Name)
		hash, hashErr := store.HashTree(latest)
		if hashErr != nil {
			return hashErr
		}
		if lock.Details[m.RegistryHandle] == nil {
			lock.Details[m.RegistryHandle] = map[string]model.ProjectLockDetail{}
		}
		lock.Details[m.RegistryHandle][fullID] = model.ProjectLockDetail{
			Version:               m.Version,
			SubPackage:            m.SubPackage,
			Integrity:             hash,
			Dependencies:          m.InstalledDependencies,
			OptionsDependencies:   m.ChosenOptions,
			OptionalsDependencies: m.ChosenOptionals,
		}
		lock.Packages[fullID] = m.Version
	}
	return store.SaveProjectLock(e.ProjectDir, lock)
}

// projectLockID builds the "@repo/name[:sub]" key store.VerifyAgainstLock
// parses back via parseFullID.
func projectLockID(m *model.InstallManifest) string {
	id := "@" + m.Repo + "/" + m.Name
	if m.SubPackage != "" {
		id += ":" + m.SubPackage
	}
	return id
}

// fetchOrBuild carries out the planner's decision for one node:
// either download and verify a prebuilt archive, or build one from
// source, committing the result into the shared cache.
func (e *Engine) fetchOrBuild(np *plan.NodePlan, node *model.InstallNode, cacheStore *cache.Store, builder8 *build.Builder) (string, error) {
	switch np.Action {
	case plan.ActionDownloadAndInstall:
		filename := node.Package.Name + "-" + node.ResolvedVersion + ".pkg.tar.zst"
		if cacheStore.Has(filename) {
			return cacheStore.ArchivePath(filename), nil
		}

		mirrors := np.Prebuilt.Mirrors
		if len(mirrors) == 0 {
			mirrors = []string{np.Prebuilt.FinalURL}
		}
		attempts := len(mirrors)
		if attempts > maxMirrorAttempts {
			attempts = maxMirrorAttempts
		}

		backoff := mirrorRetryBase
		var lastErr error
		for i := 0; i < attempts; i++ {
			if i > 0 {
				time.Sleep(backoff)
				backoff *= 2
			}
			path, err := e.downloadAndVerify(mirrors[i], filename, node, cacheStore, np)
			if err == nil {
				return path, nil
			}
			lastErr = err
			if !errs.Is(err, errs.Network) && !errs.Is(err, errs.Verify) {
				return "", err
			}
		}
		return "", lastErr

	case plan.ActionBuildAndInstall:
		method, kind, err := selectInstallationMethod(node.Package, np.Build.BuildType)
		if err != nil {
			return "", err
		}
		res, err := builder8.Build(node, method, np.Build.BuildType, kind)
		if err != nil {
			return "", err
		}
		return res.ArchivePath, nil

	default:
		return "", errs.Newf(errs.Plan, node.Package.Name, "unknown plan action %q", np.Action)
	}
}

// maxMirrorAttempts and mirrorRetryBase govern the mirror-fallback
// retry: Network and Verify failures are retried against the next
// mirror with exponential backoff, base 1s doubling each attempt, up
// to 3 attempts total.
const maxMirrorAttempts = 3

var mirrorRetryBase = time.Second

// downloadAndVerify performs one download+hash+signature attempt
// against a single mirror URL, discarding the staged file from the
// cache on any verification failure so the next attempt starts clean.
func (e *Engine) downloadAndVerify(url, filename string, node *model.InstallNode, cacheStore *cache.Store, np *plan.NodePlan) (string, error) {
	dl := &verify.Downloader{Store: cacheStore, ShowBar: e.ShowProgress}
	staged, err := dl.Download(url, filename)
	if err != nil {
		return "", err
	}

	if np.Prebuilt.HashURL != "" {
		if err := verify.VerifyHash(staged, np.Prebuilt.HashURL); err != nil {
			_ = cacheStore.Discard(filename)
			return "", err
		}
	}

	trustedKeys := append([]string{}, e.SigPolicy.TrustedKeys...)
	if node.Package.Maintainer.Key != "" && e.Keystore != nil {
		keyIsURL := strings.HasPrefix(node.Package.Maintainer.Key, "http://") || strings.HasPrefix(node.Package.Maintainer.Key, "https://")
		armored, kerr := verify.ResolveMaintainerTrust(e.Keystore, node.Package.Maintainer.Key, keyIsURL, node.Package.Maintainer.OneTime)
		if kerr == nil && armored != "" {
			trustedKeys = append(trustedKeys, armored)
		}
	}
	if err := verify.VerifySignature(staged, np.Prebuilt.PGPURL, verify.SignaturePolicy{Enable: e.SigPolicy.Enable, TrustedKeys: trustedKeys}); err != nil {
		_ = cacheStore.Discard(filename)
		return "", err
	}

	if err := cacheStore.Commit(filename); err != nil {
		return "", err
	}
	return cacheStore.ArchivePath(filename), nil
}

// selectInstallationMethod picks the first declared installation
// entry matching buildType whose platform filter admits the current
// platform.
func selectInstallationMethod(pkg *model.Package, buildType model.BuildableForm) (model.InstallationMethod, build.SourceKind, error) {
	platform := runtime.GOOS
	for _, m := range pkg.Installation {
		if m.InstallType != string(buildType) {
			continue
		}
		if len(m.Platforms) > 0 && !containsPlatform(m.Platforms, platform) {
			continue
		}
		kind := build.SourceGit
		if m.InstallType == "tarball" || (m.Tag == "" && m.Branch == "" && m.URL != "") {
			kind = build.SourceTarball
		}
		if pkg.Git != "" || m.Tag != "" || m.Branch != "" {
			kind = build.SourceGit
		}
		return m, kind, nil
	}
	return model.InstallationMethod{}, "", errs.Newf(errs.Plan, pkg.Name, "no installation method declares type %q for platform %q", buildType, platform)
}

func containsPlatform(platforms []string, platform string) bool {
	for _, p := range platforms {
		if p == platform || p == "default" {
			return true
		}
	}
	return false
}

// pruneOldVersions deletes version directories under key's package
// dir beyond the newest keep entries, the commit-time cleanup half of
// the retention policy.
func pruneOldVersions(e *Engine, key journal.PackageKey, keep int) error {
	pkgDir := paths.PackageDir(e.Scope, e.ProjectDir, key.RegistryHandle, key.Repo, key.Name)
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil
	}
	var versions []string
	for _, ent := range entries {
		if ent.IsDir() && ent.Name() != "latest" {
			versions = append(versions, ent.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool { return channel.CompareVersions(versions[i], versions[j]) < 0 })
	if len(versions) <= keep {
		return nil
	}
	for _, v := range versions[:len(versions)-keep] {
		if err := os.RemoveAll(filepath.Join(pkgDir, v)); err != nil {
			return errs.New(errs.Filesystem, key.Name, err)
		}
	}
	return nil
}

// rollback executes every RollbackOp the journal's reverse walk
// produces: delete what this transaction installed, restore what it
// replaced. Delete ops run before restore ops, so a `latest` pointer
// removed here is re-created by the restore that follows it.
func rollback(e *Engine, tx *journal.Transaction) {
	for _, op := range tx.Rollback() {
		switch op.Kind {
		case "delete_install":
			versionDir := paths.VersionDir(e.Scope, e.ProjectDir, op.Manifest.RegistryHandle, op.Manifest.Repo, op.Manifest.Name, op.Manifest.Version)
			_ = os.RemoveAll(versionDir)
			for _, bin := range op.Manifest.Bins {
				_ = os.Remove(filepath.Join(paths.BinRoot(e.Scope, e.ProjectDir), bin))
			}
			for _, f := range op.Manifest.InstalledFiles {
				_ = os.Remove(f)
			}
			// The install already swung `latest` at the version
			// directory deleted above; without this a from-scratch
			// install rolls back to a dangling pointer.
			_ = os.Remove(paths.LatestPointer(e.Scope, e.ProjectDir, op.Manifest.RegistryHandle, op.Manifest.Repo, op.Manifest.Name))
		case "restore_previous":
			pkgDir := paths.PackageDir(e.Scope, e.ProjectDir, op.Manifest.RegistryHandle, op.Manifest.Repo, op.Manifest.Name)
			staged := stagedRemovalPath(e, tx.ID(), op.Manifest.Name)
			if _, err := os.Stat(staged); err == nil {
				if _, err := os.Stat(pkgDir); os.IsNotExist(err) {
					_ = os.Rename(staged, pkgDir)
				}
			}
			latestPtr := paths.LatestPointer(e.Scope, e.ProjectDir, op.Manifest.RegistryHandle, op.Manifest.Repo, op.Manifest.Name)
			versionDir := paths.VersionDir(e.Scope, e.ProjectDir, op.Manifest.RegistryHandle, op.Manifest.Repo, op.Manifest.Name, op.Manifest.Version)
			_ = os.Remove(latestPtr)
			if _, err := os.Stat(versionDir); err == nil {
				_ = os.Symlink(versionDir, latestPtr)
				for _, bin := range op.Manifest.Bins {
					relinkBin(e, versionDir, bin)
				}
			}
		}
	}
}

// relinkBin re-creates a bin link into a restored version directory,
// mirroring the installer's link step: the declared name under
// data/usr/bin, a platform .exe variant on Windows, symlink on UNIX
// and file copy on Windows. Failures here are best-effort, like the
// rest of the rollback loop.
func relinkBin(e *Engine, versionDir, bin string) {
	src := filepath.Join(versionDir, "data", "usr", "bin", bin)
	if _, err := os.Stat(src); err != nil {
		if runtime.GOOS != "windows" {
			return
		}
		src = filepath.Join(versionDir, "data", "usr", "bin", bin+".exe")
		if _, err := os.Stat(src); err != nil {
			return
		}
	}
	binRoot := paths.BinRoot(e.Scope, e.ProjectDir)
	if err := os.MkdirAll(binRoot, 0o755); err != nil {
		return
	}
	dest := filepath.Join(binRoot, bin)
	_ = os.Remove(dest)
	if runtime.GOOS == "windows" {
		data, err := os.ReadFile(src)
		if err != nil {
			return
		}
		_ = os.WriteFile(dest, data, 0o755)
		return
	}
	_ = os.Symlink(src, dest)
}

// stagedRemovalPath is where Uninstall parks a package directory
// between RecordUninstall and commit, so a post-remove hook or commit
// failure can still move it back.
func stagedRemovalPath(e *Engine, txID, name string) string {
	return filepath.Join(paths.TransactionsDir(e.Scope, e.ProjectDir), txID+".staged", name)
}

// Uninstall removes an installed package outside of a failed
// install: drop its bin links and overlay files, rename the package
// directory aside, and delete it for good only once the transaction
// commits, all inside one journaled transaction.
func (e *Engine) Uninstall(ctx context.Context, name string) (retErr error) {
	done := telemetry.StartSpan("engine.uninstall", "name", name, "scope", string(e.Scope))
	defer func() {
		if retErr != nil {
			done("status", "error", "error", retErr.Error())
		} else {
			done("status", "ok")
		}
	}()

	fl, lockErr := lock.Acquire(paths.InstallLockPath(e.Scope, e.ProjectDir))
	if lockErr != nil {
		retErr = lockErr
		return retErr
	}
	defer fl.Release()

	installed, err := e.Store.ListInstalled()
	if err != nil {
		retErr = err
		return retErr
	}
	var m *model.InstallManifest
	for _, cand := range installed {
		if cand.Scope == e.Scope && cand.Name == name {
			m = cand
			break
		}
	}
	if m == nil {
		retErr = errs.Newf(errs.Filesystem, name, "package %q is not installed in scope %q", name, e.Scope)
		return retErr
	}

	tx, err := e.journal().Begin(installed)
	if err != nil {
		retErr = err
		return retErr
	}

	if err := hooks.Run(m.Hooks, hooks.PreRemove, name); err != nil {
		rollback(e, tx)
		retErr = err
		return retErr
	}

	key := journal.PackageKey{Scope: m.Scope, RegistryHandle: m.RegistryHandle, Repo: m.Repo, Name: m.Name}
	tx.RegisterPreState(key, m)
	if err := tx.RecordUninstall(m); err != nil {
		rollback(e, tx)
		retErr = err
		return retErr
	}

	for _, bin := range m.Bins {
		_ = os.Remove(filepath.Join(paths.BinRoot(e.Scope, e.ProjectDir), bin))
	}
	for _, f := range m.InstalledFiles {
		_ = os.Remove(f)
	}

	// The package directory is renamed aside rather than deleted, so a
	// post-remove hook or commit failure can still move it back; the
	// permanent delete is deferred to commit-time cleanup.
	pkgDir := paths.PackageDir(e.Scope, e.ProjectDir, m.RegistryHandle, m.Repo, m.Name)
	staged := stagedRemovalPath(e, tx.ID(), m.Name)
	if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
		rollback(e, tx)
		retErr = errs.New(errs.Filesystem, name, err)
		return retErr
	}
	if err := os.Rename(pkgDir, staged); err != nil {
		rollback(e, tx)
		retErr = errs.New(errs.Filesystem, name, err)
		return retErr
	}

	if err := hooks.Run(m.Hooks, hooks.PostRemove, name); err != nil {
		rollback(e, tx)
		retErr = err
		return retErr
	}

	tx.DeferCleanup(key)
	if err := tx.Commit(e.RollbackEnabled, func(journal.PackageKey, int) error {
		return os.RemoveAll(filepath.Dir(staged))
	}); err != nil {
		rollback(e, tx)
		retErr = err
		return retErr
	}

	recordPath := paths.GlobalRecordPath(e.Scope, e.ProjectDir)
	if recErr := e.Store.AppendGlobalRecord(recordPath, tx.ID(), "uninstall", m); recErr != nil {
		telemetry.Event("store.global_record_failed", "error", recErr.Error())
	}
	return nil
}

// Upgrade installs the requested roots alongside any existing
// installation, swinging `latest` and deferring removal of the old
// version directory to the same transaction's commit-time cleanup. It
// is Install with the already-installed skip check bypassed.
func (e *Engine) Upgrade(ctx context.Context, roots []string) (*Result, error) {
	forced := *e
	forced.Force = true
	return forced.Install(ctx, roots)
}

// Rollback recovers every still-Open transaction for this scope,
// applying each one's RollbackOp plan, so a crashed or interrupted
// run can be unwound on a later start.
func (e *Engine) Rollback(ctx context.Context) (recovered int, retErr error) {
	open, err := e.journal().Recover()
	if err != nil {
		return 0, err
	}
	for _, tx := range open {
		rollback(e, tx)
		recovered++
	}
	return recovered, nil
}

