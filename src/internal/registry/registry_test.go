package registry

import "testing"

func TestParseIdentifierSimpleName(t *testing.T) {
	p, err := ParseIdentifier("ripgrep")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "ripgrep" || p.Repo != "" || p.VersionOrChannel != "" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseIdentifierExplicitRepoAndVersion(t *testing.T) {
	p, err := ParseIdentifier("@core/ripgrep@1.2.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Repo != "core" || p.Name != "ripgrep" || p.VersionOrChannel != "1.2.0" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseIdentifierSubPackage(t *testing.T) {
	p, err := ParseIdentifier("@core/llvm:clang")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "llvm" || p.SubPackage != "clang" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseIdentifierURL(t *testing.T) {
	p, err := ParseIdentifier("https://example.invalid/pkg.pkg.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.URL == "" {
		t.Fatal("expected URL form to be recognized")
	}
}

func TestParseIdentifierLocalManifestPath(t *testing.T) {
	p, err := ParseIdentifier("./ripgrep.pkg.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.LocalPath == "" {
		t.Fatal("expected a .pkg.yaml suffix to be recognized as a local path")
	}
}

func TestParseIdentifierGitForm(t *testing.T) {
	p, err := ParseIdentifier("@git/myrepo/tools/thing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.GitRepoName != "myrepo" || p.GitNestedPath != "tools/thing" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseIdentifierMalformedRepoRejected(t *testing.T) {
	if _, err := ParseIdentifier("@corepkg"); err == nil {
		t.Fatal("expected an error for a repo prefix with no slash")
	}
}

func TestParseIdentifierEmptyRejected(t *testing.T) {
	if _, err := ParseIdentifier("   "); err == nil {
		t.Fatal("expected an error for an empty identifier")
	}
}

func TestSourceTypeUntrusted(t *testing.T) {
	if OfficialRepo.Untrusted() {
		t.Fatal("expected the official repo source type to be trusted")
	}
	if !UntrustedRepo.Untrusted() {
		t.Fatal("expected the untrusted repo source type to require confirmation")
	}
	if !GitRepo.Untrusted() {
		t.Fatal("expected git sources to require confirmation")
	}
}

func TestRankCandidatesBoundedAndOrdered(t *testing.T) {
	candidates := []string{"core/ripgrep", "extra/ripgrepx", "extra/rg", "extra/unrelated"}
	ranked := rankCandidates("ripgrep", candidates)
	if len(ranked) == 0 {
		t.Fatal("expected at least one ranked candidate")
	}
	if len(ranked) > maxDisambiguation {
		t.Fatalf("expected at most %d candidates, got %d", maxDisambiguation, len(ranked))
	}
}
