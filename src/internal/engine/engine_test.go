package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/zoi-pm/zoi/src/internal/cache"
	"github.com/zoi-pm/zoi/src/internal/journal"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/plan"
	"github.com/zoi-pm/zoi/src/internal/store"
)

func TestContainsPlatformMatchesExactOrDefault(t *testing.T) {
	if !containsPlatform([]string{"linux", "darwin"}, "linux") {
		t.Fatal("expected an exact platform match")
	}
	if !containsPlatform([]string{"default"}, "windows") {
		t.Fatal("expected 'default' to match any platform")
	}
	if containsPlatform([]string{"darwin"}, "linux") {
		t.Fatal("expected no match for an unlisted, non-default platform")
	}
}

func TestSelectInstallationMethodFiltersByTypeAndPlatform(t *testing.T) {
	pkg := &model.Package{
		Name: "ripgrep",
		Installation: []model.InstallationMethod{
			{InstallType: "pre-compiled", Platforms: []string{"windows"}, URL: "https://example/win.zip"},
			{InstallType: "source", Platforms: []string{"linux", "darwin"}, URL: "https://example/src.tar.gz"},
		},
	}
	method, _, err := selectInstallationMethod(pkg, model.FormSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method.URL != "https://example/src.tar.gz" {
		t.Fatalf("unexpected method selected: %+v", method)
	}
}

func TestSelectInstallationMethodNoMatchErrors(t *testing.T) {
	pkg := &model.Package{
		Name: "ripgrep",
		Installation: []model.InstallationMethod{
			{InstallType: "pre-compiled", Platforms: []string{"plan9"}},
		},
	}
	if _, _, err := selectInstallationMethod(pkg, model.FormSource); err == nil {
		t.Fatal("expected an error when no installation method matches the requested build type")
	}
}

func TestPruneOldVersionsKeepsOnlyNewest(t *testing.T) {
	projectDir := t.TempDir()
	e := &Engine{Scope: model.ScopeProject, ProjectDir: projectDir}
	key := journal.PackageKey{Scope: model.ScopeProject, RegistryHandle: "core", Repo: "main", Name: "ripgrep"}

	pkgDir := filepath.Join(projectDir, ".zoi", "store", "core", "main", "ripgrep")
	for _, v := range []string{"1.0.0", "1.1.0", "1.2.0"} {
		if err := os.MkdirAll(filepath.Join(pkgDir, v), 0o755); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := pruneOldVersions(e, key, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "1.2.0" {
		t.Fatalf("expected only the newest version to survive, got %v", entries)
	}
}

func TestPruneOldVersionsNoopWhenWithinKeepLimit(t *testing.T) {
	projectDir := t.TempDir()
	e := &Engine{Scope: model.ScopeProject, ProjectDir: projectDir}
	key := journal.PackageKey{Scope: model.ScopeProject, RegistryHandle: "core", Repo: "main", Name: "ripgrep"}

	pkgDir := filepath.Join(projectDir, ".zoi", "store", "core", "main", "ripgrep")
	if err := os.MkdirAll(filepath.Join(pkgDir, "1.0.0"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := pruneOldVersions(e, key, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the single version to remain untouched, got %v", entries)
	}
}

func TestFetchOrBuildRetriesNextMirrorOnNetworkFailure(t *testing.T) {
	orig := mirrorRetryBase
	mirrorRetryBase = time.Millisecond
	defer func() { mirrorRetryBase = orig }()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "archive-bytes")
	}))
	defer good.Close()

	cacheStore, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := &Engine{}
	node := &model.InstallNode{Package: &model.Package{Name: "ripgrep"}, ResolvedVersion: "1.0.0"}
	np := &plan.NodePlan{
		Action: plan.ActionDownloadAndInstall,
		Node:   node,
		Prebuilt: &plan.PrebuiltDetails{
			Mirrors: []string{bad.URL, good.URL},
		},
	}

	path, err := e.fetchOrBuild(np, node, cacheStore, nil)
	if err != nil {
		t.Fatalf("expected the second mirror to succeed, got error: %v", err)
	}
	if !cacheStore.Has("ripgrep-1.0.0.pkg.tar.zst") {
		t.Fatalf("expected the archive to be committed to the cache, got path %s", path)
	}
}

func TestFetchOrBuildGivesUpAfterThreeMirrorAttempts(t *testing.T) {
	orig := mirrorRetryBase
	mirrorRetryBase = time.Millisecond
	defer func() { mirrorRetryBase = orig }()

	var hits int
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	cacheStore, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := &Engine{}
	node := &model.InstallNode{Package: &model.Package{Name: "ripgrep"}, ResolvedVersion: "1.0.0"}
	np := &plan.NodePlan{
		Action: plan.ActionDownloadAndInstall,
		Node:   node,
		Prebuilt: &plan.PrebuiltDetails{
			Mirrors: []string{broken.URL, broken.URL, broken.URL, broken.URL},
		},
	}

	if _, err := e.fetchOrBuild(np, node, cacheStore, nil); err == nil {
		t.Fatal("expected an error once every attempt is exhausted")
	}
	if hits != maxMirrorAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", maxMirrorAttempts, hits)
	}
}

func TestSaveProjectLockBuildsDetailsFromInstalledManifests(t *testing.T) {
	projectDir := t.TempDir()
	e := &Engine{Scope: model.ScopeProject, ProjectDir: projectDir, Store: &store.Store{ProjectDir: projectDir}}

	versionDir := filepath.Join(projectDir, ".zoi", "store", "core", "main", "ripgrep", "1.2.0")
	if err := os.MkdirAll(filepath.Join(versionDir, "data"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, "data", "rg"), []byte("binary"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manifest := &model.InstallManifest{
		Name: "ripgrep", Repo: "main", RegistryHandle: "core", Scope: model.ScopeProject,
		Version: "1.2.0", Reason: "direct",
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, "manifest.yaml"), data, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	latest := filepath.Join(projectDir, ".zoi", "store", "core", "main", "ripgrep", "latest")
	if err := os.Symlink(versionDir, latest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.saveProjectLock(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lock, err := store.LoadProjectLock(projectDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	detail, ok := lock.Details["core"]["@main/ripgrep"]
	if !ok {
		t.Fatal("expected a lockfile entry for @main/ripgrep under handle core")
	}
	if detail.Version != "1.2.0" {
		t.Fatalf("unexpected version: %s", detail.Version)
	}
	if detail.Integrity == "" {
		t.Fatal("expected a non-empty integrity digest")
	}
}

func writeVersionDir(t *testing.T, projectDir, name, version string) string {
	t.Helper()
	versionDir := filepath.Join(projectDir, ".zoi", "store", "core", "main", name, version)
	binDir := filepath.Join(versionDir, "data", "usr", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\necho "+version+"\n"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return versionDir
}

func writeVersionManifest(t *testing.T, versionDir string, m *model.InstallManifest) {
	t.Helper()
	data, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, "manifest.yaml"), data, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func rgManifest(version string) *model.InstallManifest {
	return &model.InstallManifest{
		Name: "rg", Repo: "main", RegistryHandle: "core",
		Scope: model.ScopeProject, Version: version,
		Reason: "direct", Bins: []string{"rg"},
	}
}

func TestRollbackUpgradeRestoresPreviousLatestAndBinLinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink-based rollback path is exercised on POSIX only")
	}
	projectDir := t.TempDir()
	e := &Engine{Scope: model.ScopeProject, ProjectDir: projectDir}

	oldDir := writeVersionDir(t, projectDir, "rg", "1.0.0")
	newDir := writeVersionDir(t, projectDir, "rg", "2.0.0")

	pkgDir := filepath.Dir(oldDir)
	latest := filepath.Join(pkgDir, "latest")
	if err := os.Symlink(newDir, latest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	binRoot := filepath.Join(projectDir, ".zoi", "bin")
	if err := os.MkdirAll(binRoot, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.Symlink(filepath.Join(newDir, "data", "usr", "bin", "rg"), filepath.Join(binRoot, "rg")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	j := &journal.Journal{Dir: filepath.Join(projectDir, ".zoi", "transactions")}
	tx, err := j.Begin(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := journal.PackageKey{Scope: model.ScopeProject, RegistryHandle: "core", Repo: "main", Name: "rg"}
	tx.RegisterPreState(key, rgManifest("1.0.0"))
	if err := tx.RecordInstall(rgManifest("2.0.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rollback(e, tx)

	if _, err := os.Stat(newDir); !os.IsNotExist(err) {
		t.Fatal("expected the upgraded version directory to be deleted")
	}
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("expected latest to be restored as a symlink: %v", err)
	}
	if target != oldDir {
		t.Fatalf("expected latest to point back at %s, got %s", oldDir, target)
	}
	binTarget, err := os.Readlink(filepath.Join(binRoot, "rg"))
	if err != nil {
		t.Fatalf("expected the bin link to be reinstated: %v", err)
	}
	if binTarget != filepath.Join(oldDir, "data", "usr", "bin", "rg") {
		t.Fatalf("expected the bin link to point into the restored version, got %s", binTarget)
	}
}

func TestRollbackFreshInstallRemovesLatestPointer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink-based rollback path is exercised on POSIX only")
	}
	projectDir := t.TempDir()
	e := &Engine{Scope: model.ScopeProject, ProjectDir: projectDir}

	versionDir := writeVersionDir(t, projectDir, "rg", "1.0.0")
	latest := filepath.Join(filepath.Dir(versionDir), "latest")
	if err := os.Symlink(versionDir, latest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	j := &journal.Journal{Dir: filepath.Join(projectDir, ".zoi", "transactions")}
	tx, err := j.Begin(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := journal.PackageKey{Scope: model.ScopeProject, RegistryHandle: "core", Repo: "main", Name: "rg"}
	tx.RegisterPreState(key, nil)
	if err := tx.RecordInstall(rgManifest("1.0.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rollback(e, tx)

	if _, err := os.Lstat(latest); !os.IsNotExist(err) {
		t.Fatal("expected no dangling latest pointer after rolling back a fresh install")
	}
	if _, err := os.Stat(versionDir); !os.IsNotExist(err) {
		t.Fatal("expected the installed version directory to be deleted")
	}
}

func TestUninstallPostRemoveHookFailureRestoresPackage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink-based uninstall path is exercised on POSIX only")
	}
	projectDir := t.TempDir()
	e := &Engine{Scope: model.ScopeProject, ProjectDir: projectDir, Store: &store.Store{ProjectDir: projectDir}}

	versionDir := writeVersionDir(t, projectDir, "rg", "1.0.0")
	m := rgManifest("1.0.0")
	m.Hooks = model.Hooks{PostRemove: map[string][]string{"default": {"exit 1"}}}
	writeVersionManifest(t, versionDir, m)
	pkgDir := filepath.Dir(versionDir)
	latest := filepath.Join(pkgDir, "latest")
	if err := os.Symlink(versionDir, latest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	binRoot := filepath.Join(projectDir, ".zoi", "bin")
	if err := os.MkdirAll(binRoot, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.Symlink(filepath.Join(versionDir, "data", "usr", "bin", "rg"), filepath.Join(binRoot, "rg")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.Uninstall(context.Background(), "rg"); err == nil {
		t.Fatal("expected the failing post-remove hook to surface as an error")
	}

	if _, err := os.Stat(filepath.Join(versionDir, "manifest.yaml")); err != nil {
		t.Fatalf("expected the package directory to be moved back into place: %v", err)
	}
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("expected latest to survive the failed uninstall: %v", err)
	}
	if target != versionDir {
		t.Fatalf("expected latest to point at %s, got %s", versionDir, target)
	}
	if _, err := os.Readlink(filepath.Join(binRoot, "rg")); err != nil {
		t.Fatalf("expected the bin link to be reinstated: %v", err)
	}
}
