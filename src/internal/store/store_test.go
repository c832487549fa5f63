package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"

	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
)

func TestParseFullID(t *testing.T) {
	cases := []struct {
		in       string
		wantRepo string
		wantName string
		wantSub  string
	}{
		{"@core/ripgrep", "core", "ripgrep", ""},
		{"@core/llvm:clang", "core", "llvm", "clang"},
		{"solo", "", "solo", ""},
	}
	for _, c := range cases {
		repo, name, sub := parseFullID(c.in)
		if repo != c.wantRepo || name != c.wantName || sub != c.wantSub {
			t.Errorf("parseFullID(%q) = (%q, %q, %q), want (%q, %q, %q)", c.in, repo, name, sub, c.wantRepo, c.wantName, c.wantSub)
		}
	}
}

func TestHashTreeStableAcrossFileOrder(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "b.txt"), "second")
	mustWrite(t, filepath.Join(dir, "a.txt"), "first")

	hash1, err := HashTree(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := t.TempDir()
	mustWrite(t, filepath.Join(other, "a.txt"), "first")
	mustWrite(t, filepath.Join(other, "b.txt"), "second")
	hash2, err := HashTree(other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if hash1 != hash2 {
		t.Fatalf("expected identical trees written in different orders to hash identically, got %s vs %s", hash1, hash2)
	}
}

func TestHashTreeChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.txt"), "first")
	hash1, _ := HashTree(dir)
	mustWrite(t, filepath.Join(dir, "a.txt"), "changed")
	hash2, _ := HashTree(dir)
	if hash1 == hash2 {
		t.Fatal("expected hash to change when file content changes")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func manifest(name string, deps []string, reason string) *model.InstallManifest {
	return &model.InstallManifest{
		Name:                  name,
		Version:               "1.0.0",
		Scope:                 model.ScopeProject,
		Reason:                reason,
		InstalledDependencies: deps,
	}
}

func writeManifest(t *testing.T, projectDir string, m *model.InstallManifest) {
	t.Helper()
	m.Scope = model.ScopeProject
	m.RegistryHandle = "core"
	m.Repo = "main"
	dir := paths.VersionDir(model.ScopeProject, projectDir, "core", "main", m.Name, m.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestDependentsInvertsForwardEdges(t *testing.T) {
	projectDir := t.TempDir()
	writeManifest(t, projectDir, manifest("zlib", nil, "dependency"))
	writeManifest(t, projectDir, manifest("curl", []string{"zlib"}, "direct"))
	writeManifest(t, projectDir, manifest("wget", []string{"zlib"}, "direct"))

	s := &Store{ProjectDir: projectDir}
	dependents, err := s.Dependents(model.ScopeProject, "zlib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dependents) != 2 || dependents[0] != "curl" || dependents[1] != "wget" {
		t.Fatalf("expected zlib's dependents to be [curl wget], got %v", dependents)
	}
}

func TestAutoremoveCandidatesSkipsDirectAndReferenced(t *testing.T) {
	projectDir := t.TempDir()
	writeManifest(t, projectDir, manifest("zlib", nil, "dependency"))
	writeManifest(t, projectDir, manifest("curl", []string{"zlib"}, "direct"))
	writeManifest(t, projectDir, manifest("orphan", nil, "dependency"))

	s := &Store{ProjectDir: projectDir}
	candidates, err := s.AutoremoveCandidates(model.ScopeProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Name != "orphan" {
		t.Fatalf("expected only 'orphan' to be an autoremove candidate, got %v", candidates)
	}
}

func TestListInstalledWorksAgainstAnInMemoryFilesystem(t *testing.T) {
	fs := afero.NewMemMapFs()
	projectDir := "/project"
	dir := paths.VersionDir(model.ScopeProject, projectDir, "core", "main", "ripgrep", "1.0.0")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := manifest("ripgrep", nil, "direct")
	m.Scope = model.ScopeProject
	m.RegistryHandle = "core"
	m.Repo = "main"
	data, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(dir, "manifest.yaml"), data, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	latest := paths.LatestPointer(model.ScopeProject, projectDir, "core", "main", "ripgrep")
	if err := fs.MkdirAll(latest, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(latest, "manifest.yaml"), data, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := &Store{ProjectDir: projectDir, Fs: fs}
	installed, err := s.ListInstalled()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(installed) != 1 || installed[0].Name != "ripgrep" {
		t.Fatalf("expected the in-memory manifest to be listed, got %v", installed)
	}

	found, ok := s.FindInstalled(model.ScopeProject, "core", "main", "ripgrep")
	if !ok || found.Name != "ripgrep" {
		t.Fatalf("expected FindInstalled to resolve the in-memory manifest, got %v ok=%v", found, ok)
	}
}

func TestLoadProjectLockMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	lock, err := LoadProjectLock(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lock.Details) != 0 {
		t.Fatalf("expected an empty lockfile, got %+v", lock)
	}
}

func TestSaveAndLoadProjectLockRoundTrips(t *testing.T) {
	dir := t.TempDir()
	lock := model.NewProjectLock()
	lock.Details["core"] = map[string]model.ProjectLockDetail{
		"@main/ripgrep": {Version: "1.2.0", Integrity: "deadbeef"},
	}
	if err := SaveProjectLock(dir, lock); err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}
	reloaded, err := LoadProjectLock(dir)
	if err != nil {
		t.Fatalf("unexpected error loading: %v", err)
	}
	detail := reloaded.Details["core"]["@main/ripgrep"]
	if detail.Version != "1.2.0" || detail.Integrity != "deadbeef" {
		t.Fatalf("unexpected round-tripped detail: %+v", detail)
	}
}
