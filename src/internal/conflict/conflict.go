// Package conflict detects name, binary/virtual, and file conflicts
// before any worker mutates the filesystem. The installed-state
// lookups are a narrow interface rather than a direct store import to
// avoid an import cycle between conflict and store.
package conflict

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/zoi-pm/zoi/src/internal/archive"
	"github.com/zoi-pm/zoi/src/internal/model"
)

// Class identifies which of the three conflict kinds fired.
type Class string

const (
	ClassName   Class = "name"
	ClassBinary Class = "binary"
	ClassFile   Class = "file"
)

type Conflict struct {
	Class    Class
	NodeID   string
	Detail   string
	Existing string // the conflicting package/path/command, when known
}

// InstalledIndex is the read-only view into the store the checker
// needs.
type InstalledIndex struct {
	// HasManifest reports whether a package named name is installed
	// at scope.
	HasManifest func(scope model.Scope, name string) bool
	// OwnerOfBin reports which installed package owns a bin name at
	// scope, if any.
	OwnerOfBin func(scope model.Scope, bin string) (owner string, ok bool)
	// OwnerOfVirtual reports which installed package provides a
	// virtual name at scope, if any.
	OwnerOfVirtual func(scope model.Scope, virtual string) (owner string, ok bool)
}

// Checker runs the three conflict classes against an install node.
type Checker struct {
	Index   InstalledIndex
	BinRoot func(scope model.Scope) string
}

// CheckName implements the name-conflict class: the node's declared
// conflicts[] name an installed package, or the scope's bin root (or
// PATH) already has a command with that name that we did not install.
func (c *Checker) CheckName(node *model.InstallNode) []Conflict {
	var out []Conflict
	for _, name := range node.Package.Conflicts {
		if c.Index.HasManifest != nil && c.Index.HasManifest(node.Package.Scope, name) {
			out = append(out, Conflict{Class: ClassName, NodeID: node.ID(), Detail: "conflicts[] package already installed", Existing: name})
		}
	}
	for _, bin := range node.Package.Bins {
		if _, ok := c.Index.OwnerOfBin(node.Package.Scope, bin); ok {
			continue // handled as a binary conflict below; avoid double-reporting
		}
		if _, err := exec.LookPath(bin); err == nil {
			out = append(out, Conflict{Class: ClassName, NodeID: node.ID(), Detail: "command already present on PATH and not owned by us", Existing: bin})
		}
	}
	return out
}

// CheckBinaryAndVirtual implements the binary/virtual-conflict class.
func (c *Checker) CheckBinaryAndVirtual(node *model.InstallNode) []Conflict {
	var out []Conflict
	for _, bin := range node.Package.Bins {
		if owner, ok := c.Index.OwnerOfBin(node.Package.Scope, bin); ok && owner != node.Package.Name {
			out = append(out, Conflict{Class: ClassBinary, NodeID: node.ID(), Detail: "bin already provided", Existing: owner})
		}
	}
	for _, virtual := range node.Package.Provides {
		if owner, ok := c.Index.OwnerOfVirtual(node.Package.Scope, virtual); ok && owner != node.Package.Name {
			out = append(out, Conflict{Class: ClassBinary, NodeID: node.ID(), Detail: "virtual already provided", Existing: owner})
		}
	}
	return out
}

// CheckFiles implements the file-conflict class: every destination
// path the archive would overlay under usrroot/ (system scope) or
// usrhome/ (user scope) is checked for prior existence. Paths under
// data/<sub>/... are only checked when chosenSubs contains that sub.
func (c *Checker) CheckFiles(node *model.InstallNode, archivePath string, chosenSubs map[string]bool, homeDir string) ([]Conflict, error) {
	entries, err := archive.List(archivePath)
	if err != nil {
		return nil, err
	}

	wantKind := "usrhome"
	if node.Package.Scope == model.ScopeSystem {
		wantKind = "usrroot"
	}

	var out []Conflict
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		sub, kind, rel, ok := splitDataEntry(e.Name)
		if !ok || kind != wantKind {
			continue
		}
		if sub != "" && !chosenSubs[sub] {
			continue
		}

		dest := filepath.Join(overlayRoot(node.Package.Scope, homeDir), filepath.FromSlash(rel))
		if _, err := os.Stat(dest); err == nil {
			out = append(out, Conflict{Class: ClassFile, NodeID: node.ID(), Detail: "destination already exists", Existing: dest})
		}
	}
	return out, nil
}

func overlayRoot(scope model.Scope, homeDir string) string {
	if scope == model.ScopeSystem {
		return string(os.PathSeparator)
	}
	return homeDir
}

// splitDataEntry decomposes an archive path of the form
// "data/[<sub>/]usrroot/..." or "data/[<sub>/]usrhome/..." into its
// sub-package name (empty for the default subtree), overlay kind, and
// the path relative to the overlay root.
func splitDataEntry(name string) (sub, kind, rel string, ok bool) {
	parts := strings.Split(name, "/")
	if len(parts) < 2 || parts[0] != "data" {
		return "", "", "", false
	}
	idx := 1
	if parts[idx] != "usrroot" && parts[idx] != "usrhome" {
		sub = parts[idx]
		idx++
	}
	if idx >= len(parts) {
		return "", "", "", false
	}
	kind = parts[idx]
	if kind != "usrroot" && kind != "usrhome" {
		return "", "", "", false
	}
	idx++
	return sub, kind, strings.Join(parts[idx:], "/"), true
}

// ClassifySoleFile uses magic-byte sniffing to decide whether a
// package's single produced file is the binary to link, the sole-file
// heuristic the installer and builder both fall back on when
// `binary_path` is absent and the bin name doesn't match any unpacked
// file.
func ClassifySoleFile(path string) (isExecutableLike bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	head := data
	if len(head) > 262 {
		head = head[:262]
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return false, err
	}
	if kind == filetype.Unknown {
		// Unrecognized magic bytes are common for stripped static
		// binaries and shell scripts; treat as a plausible executable
		// rather than rejecting it outright.
		return true, nil
	}
	return kind.MIME.Type == "application", nil
}
