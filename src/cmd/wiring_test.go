package cmd

import (
	"fmt"
	"testing"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
)

func TestResolveScopeDefaultsToUser(t *testing.T) {
	old := scopeFlag
	defer func() { scopeFlag = old }()

	scopeFlag = "bogus"
	if resolveScope() != model.ScopeUser {
		t.Fatalf("expected unrecognized scope to default to user")
	}
	scopeFlag = ""
	if resolveScope() != model.ScopeUser {
		t.Fatalf("expected empty scope to default to user")
	}
}

func TestResolveScopeRecognizesSystemAndProject(t *testing.T) {
	old := scopeFlag
	defer func() { scopeFlag = old }()

	scopeFlag = "SYSTEM"
	if resolveScope() != model.ScopeSystem {
		t.Fatalf("expected case-insensitive match for system scope")
	}
	scopeFlag = "project"
	if resolveScope() != model.ScopeProject {
		t.Fatalf("expected project scope to resolve")
	}
}

func TestMirrorTableFromInstallationCollectsPreCompiledURLs(t *testing.T) {
	node := &model.InstallNode{
		Package: &model.Package{
			Name: "ripgrep",
			Installation: []model.InstallationMethod{
				{InstallType: "source", URL: "https://example/src.tar.gz"},
				{InstallType: "pre-compiled", URL: "https://example/rg-linux.tar.gz", Checksums: "https://example/rg.sha256", Sigs: "https://example/rg.sig"},
				{InstallType: "binary", URL: "https://example/rg-darwin.tar.gz"},
			},
		},
	}

	templates, hashURL, pgpURL, sizeURL, ok := mirrorTableFromInstallation(node)
	if !ok {
		t.Fatal("expected ok for a node with pre-compiled entries")
	}
	if len(templates) != 2 || templates[0] != "https://example/rg-linux.tar.gz" || templates[1] != "https://example/rg-darwin.tar.gz" {
		t.Fatalf("unexpected templates: %v", templates)
	}
	if hashURL != "https://example/rg.sha256" {
		t.Fatalf("unexpected hashURL: %s", hashURL)
	}
	if pgpURL != "https://example/rg.sig" {
		t.Fatalf("unexpected pgpURL: %s", pgpURL)
	}
	if sizeURL != "" {
		t.Fatalf("expected no sizeURL, got %s", sizeURL)
	}
}

func TestMirrorTableFromInstallationFalseWhenNoPreCompiledEntries(t *testing.T) {
	node := &model.InstallNode{
		Package: &model.Package{
			Name: "llvm",
			Installation: []model.InstallationMethod{
				{InstallType: "source", URL: "https://example/src.tar.gz"},
			},
		},
	}

	templates, _, _, _, ok := mirrorTableFromInstallation(node)
	if ok || templates != nil {
		t.Fatalf("expected no mirror table for a source-only node, got %v ok=%v", templates, ok)
	}
}

func TestMirrorTableFromInstallationSkipsEntriesWithoutURL(t *testing.T) {
	node := &model.InstallNode{
		Package: &model.Package{
			Name: "ripgrep",
			Installation: []model.InstallationMethod{
				{InstallType: "pre-compiled", URL: ""},
			},
		},
	}

	templates, _, _, _, ok := mirrorTableFromInstallation(node)
	if ok || len(templates) != 0 {
		t.Fatalf("expected a URL-less entry to be skipped, got %v ok=%v", templates, ok)
	}
}

func TestExitCodeForMapsKnownCategories(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errs.Newf(errs.Conflict, "rg", "conflict"), 2},
		{errs.Newf(errs.Verify, "rg", "bad hash"), 3},
		{errs.Newf(errs.Plan, "rg", "no method"), 4},
		{errs.Newf(errs.LockfileDrift, "rg", "drift"), 5},
		{fmt.Errorf("plain error"), 1},
		{nil, 1},
	}
	for _, c := range cases {
		if got := exitCodeFor(c.err); got != c.want {
			t.Fatalf("exitCodeFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
