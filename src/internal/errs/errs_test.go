package errs

import (
	"errors"
	"testing"
)

func TestIsMatchesCategory(t *testing.T) {
	err := Newf(Verify, "ripgrep", "signature mismatch")
	if !Is(err, Verify) {
		t.Fatal("expected error to match Verify category")
	}
	if Is(err, Network) {
		t.Fatal("expected error not to match Network category")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("boom"), Verify) {
		t.Fatal("expected a non-categorized error to never match")
	}
}

func TestErrorStringIncludesPkgWhenSet(t *testing.T) {
	err := Newf(Conflict, "ripgrep", "already installed")
	if got, want := err.Error(), "conflict[ripgrep]: already installed"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestErrorStringOmitsPkgWhenEmpty(t *testing.T) {
	err := Newf(Cycle, "", "dependency cycle")
	if got, want := err.Error(), "cycle: dependency cycle"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		category Category
		want     int
	}{
		{Conflict, 2},
		{Verify, 3},
		{Resolve, 4},
		{Plan, 4},
		{Cycle, 4},
		{LockfileDrift, 5},
		{Filesystem, 1},
		{Hook, 1},
	}
	for _, c := range cases {
		err := Newf(c.category, "", "boom")
		if got := ExitCode(err); got != c.want {
			t.Errorf("category %s: got exit code %d, want %d", c.category, got, c.want)
		}
	}
}

func TestExitCodeNilIsZero(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("expected nil error to map to exit code 0")
	}
}

func TestExitCodeUncategorizedIsOne(t *testing.T) {
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatal("expected an uncategorized error to map to exit code 1")
	}
}
