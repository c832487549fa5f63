package installer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/zoi-pm/zoi/src/internal/archive"
	"github.com/zoi-pm/zoi/src/internal/model"
)

func buildSampleArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	binPath := filepath.Join(dir, "rg")
	if err := os.WriteFile(binPath, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	confPath := filepath.Join(dir, "rg.conf")
	if err := os.WriteFile(confPath, []byte("# config\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	meta := model.FinalMetadata{
		Name:    "ripgrep",
		Version: "1.0.0",
		Installation: model.MetadataInstall{
			InstallType: "pre-compiled",
		},
		Bins: []string{"rg"},
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	metaPath := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(metaPath, metaData, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	archivePath := filepath.Join(dir, "ripgrep-1.0.0.pkg.tar.zst")
	files := []archive.StagedFile{
		{ArchiveName: "metadata.json", SourcePath: metaPath},
		{ArchiveName: "data/usr/bin/rg", SourcePath: binPath, Mode: 0o755},
		{ArchiveName: "data/usrhome/.config/rg.conf", SourcePath: confPath},
	}
	if err := archive.Seal(archivePath, files); err != nil {
		t.Fatalf("unexpected error sealing: %v", err)
	}
	return archivePath
}

func TestInstallLinksBinsAppliesOverlaysAndWritesManifest(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink-based install path is exercised on POSIX only")
	}
	archivePath := buildSampleArchive(t)
	projectDir := t.TempDir()
	homeDir := t.TempDir()

	ins := &Installer{ProjectDir: projectDir, HomeDir: homeDir}
	node := &model.InstallNode{
		Package: &model.Package{
			Name: "ripgrep",
			Bins: []string{"rg"},
		},
		ResolvedVersion: "1.0.0",
		Reason:          model.DirectReason(),
	}

	result, err := ins.Install(node, archivePath, model.ScopeProject, "core", "pre-compiled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Manifest.Name != "ripgrep" || result.Manifest.Version != "1.0.0" {
		t.Fatalf("unexpected manifest: %+v", result.Manifest)
	}
	if result.Manifest.Reason != "direct" {
		t.Fatalf("expected direct install reason, got %s", result.Manifest.Reason)
	}

	manifestPath := filepath.Join(result.VersionDir, "manifest.yaml")
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("expected manifest.yaml to be written: %v", err)
	}

	overlayPath := filepath.Join(homeDir, ".config", "rg.conf")
	if _, err := os.Lstat(overlayPath); err != nil {
		t.Fatalf("expected usrhome overlay to be applied: %v", err)
	}
}

func TestInstallSwingsLatestPointerToNewVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink-based install path is exercised on POSIX only")
	}
	archivePath := buildSampleArchive(t)
	projectDir := t.TempDir()
	homeDir := t.TempDir()

	ins := &Installer{ProjectDir: projectDir, HomeDir: homeDir}
	node := &model.InstallNode{
		Package:         &model.Package{Name: "ripgrep", Bins: []string{"rg"}},
		ResolvedVersion: "1.0.0",
		Reason:          model.DirectReason(),
	}

	result, err := ins.Install(node, archivePath, model.ScopeProject, "core", "pre-compiled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PreviousLatest != "" {
		t.Fatalf("expected no previous latest on a first install, got %s", result.PreviousLatest)
	}

	latestPtr := filepath.Join(filepath.Dir(result.VersionDir), "latest")
	target, err := os.Readlink(latestPtr)
	if err != nil {
		t.Fatalf("expected latest to be a symlink: %v", err)
	}
	if target != result.VersionDir {
		t.Fatalf("expected latest to point at %s, got %s", result.VersionDir, target)
	}
}
