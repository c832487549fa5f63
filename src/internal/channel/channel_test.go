package channel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zoi-pm/zoi/src/internal/model"
)

func TestGetVersionForInstallPinTakesPrecedence(t *testing.T) {
	def := &model.Package{Name: "ripgrep", Version: "1.0.0"}
	pins := NewPinStore()
	pins.Pin("ripgrep", "0.9.0")

	version, err := GetVersionForInstall(def, "", pins)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "0.9.0" {
		t.Fatalf("expected pinned version 0.9.0, got %s", version)
	}
}

func TestGetVersionForInstallChannelLookup(t *testing.T) {
	def := &model.Package{
		Name:     "ripgrep",
		Versions: map[string]string{"stable": "1.2.0", "nightly": "1.3.0-nightly"},
	}
	version, err := GetVersionForInstall(def, "@nightly", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "1.3.0-nightly" {
		t.Fatalf("expected 1.3.0-nightly, got %s", version)
	}
}

func TestGetVersionForInstallUnrecognizedChannelTreatedAsExactVersion(t *testing.T) {
	def := &model.Package{Name: "ripgrep", Versions: map[string]string{"stable": "1.2.0"}}
	version, err := GetVersionForInstall(def, "2.0.0-rc1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "2.0.0-rc1" {
		t.Fatalf("expected literal version passthrough, got %s", version)
	}
}

func TestDefaultVersionFallsBackToLiteralVersion(t *testing.T) {
	def := &model.Package{Name: "ripgrep", Version: "0.5.0"}
	version, err := GetVersionForInstall(def, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "0.5.0" {
		t.Fatalf("expected 0.5.0, got %s", version)
	}
}

func TestSatisfiesInstalled(t *testing.T) {
	if !SatisfiesInstalled("1.2.0", "1.2.0") {
		t.Fatal("expected exact match to satisfy")
	}
	if !SatisfiesInstalled("v1.2.0", "1.2.0") {
		t.Fatal("expected semver-equal versions to satisfy")
	}
	if SatisfiesInstalled("1.2.0", "1.3.0") {
		t.Fatal("expected differing versions not to satisfy")
	}
}

func TestCompareVersionsSemver(t *testing.T) {
	if CompareVersions("1.2.0", "1.10.0") >= 0 {
		t.Fatal("expected 1.2.0 < 1.10.0 under semver comparison")
	}
}

func TestPinStorePersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pinned.json")

	store, err := LoadPinStore(path)
	if err != nil {
		t.Fatalf("unexpected error loading missing file: %v", err)
	}
	if len(store.Pins) != 0 {
		t.Fatalf("expected empty pin store for missing file, got %v", store.Pins)
	}

	store.Pin("ripgrep", "1.0.0")
	if err := store.Save(path); err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	reloaded, err := LoadPinStore(path)
	if err != nil {
		t.Fatalf("unexpected error reloading: %v", err)
	}
	if !reloaded.IsPinned("ripgrep") || reloaded.PinnedVersion("ripgrep") != "1.0.0" {
		t.Fatalf("expected reloaded pin to survive, got %v", reloaded.Pins)
	}
}

func TestLoadPinStoreMalformedFileFallsBackEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pinned.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	store, err := LoadPinStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.Pins) != 0 {
		t.Fatalf("expected empty pin store for malformed file, got %v", store.Pins)
	}
}
