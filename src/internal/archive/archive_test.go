package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func sealSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	binPath := filepath.Join(dir, "rg")
	if err := os.WriteFile(binPath, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}
	metaPath := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(metaPath, []byte(`{"name":"ripgrep"}`), 0o644); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}

	archivePath := filepath.Join(dir, "ripgrep-1.0.0.pkg.tar.zst")
	files := []StagedFile{
		{ArchiveName: "metadata.json", SourcePath: metaPath},
		{ArchiveName: "data/usr/bin/rg", SourcePath: binPath, Mode: 0o755},
	}
	if err := Seal(archivePath, files); err != nil {
		t.Fatalf("unexpected error sealing: %v", err)
	}
	return archivePath
}

func TestSealThenListRoundTrips(t *testing.T) {
	archivePath := sealSample(t)

	entries, err := List(archivePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["metadata.json"] || !names["data/usr/bin/rg"] {
		t.Fatalf("unexpected entry names: %v", entries)
	}
}

func TestDataEntriesFiltersToDataSubtree(t *testing.T) {
	archivePath := sealSample(t)

	entries, err := DataEntries(archivePath, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "data/usr/bin/rg" {
		t.Fatalf("expected only the data/ entry, got %v", entries)
	}
}

func TestExtractWritesDataFilesUnderDestDir(t *testing.T) {
	archivePath := sealSample(t)
	destDir := t.TempDir()

	written, err := Extract(archivePath, "", destDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("expected 1 extracted file, got %d", len(written))
	}
	content, err := os.ReadFile(filepath.Join(destDir, "usr", "bin", "rg"))
	if err != nil {
		t.Fatalf("expected extracted file to exist: %v", err)
	}
	if string(content) != "#!/bin/sh\necho hi\n" {
		t.Fatalf("unexpected extracted content: %q", content)
	}
}

func TestReadFileReturnsNamedEntryContent(t *testing.T) {
	archivePath := sealSample(t)

	data, err := ReadFile(archivePath, "metadata.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"name":"ripgrep"}` {
		t.Fatalf("unexpected metadata content: %s", data)
	}
}

func TestReadFileMissingEntryErrors(t *testing.T) {
	archivePath := sealSample(t)
	if _, err := ReadFile(archivePath, "nonexistent.json"); err == nil {
		t.Fatal("expected an error for a missing archive entry")
	}
}
