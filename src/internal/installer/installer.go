// Package installer unpacks a verified archive into the versioned
// store, links its binaries into the scope bin directory, applies
// usrroot/usrhome overlays, swings the latest pointer, and writes the
// per-package manifest.
package installer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/zoi-pm/zoi/src/internal/archive"
	"github.com/zoi-pm/zoi/src/internal/conflict"
	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

type Installer struct {
	ProjectDir string
	HomeDir    string // overlay root for usrhome
}

// Result is everything the journal and store need to record after a
// successful install.
type Result struct {
	VersionDir     string
	Manifest       *model.InstallManifest
	PreviousLatest string // empty unless this install replaces an existing `latest`
}

// Install unpacks, links, overlays, and records one node.
func (ins *Installer) Install(node *model.InstallNode, archivePath string, scope model.Scope, registryHandle string, installMethod string) (*Result, error) {
	done := telemetry.StartSpan("installer.install", "name", node.Package.Name, "version", node.ResolvedVersion)
	var err error
	defer func() {
		if err != nil {
			done("status", "error", "error", err.Error())
		} else {
			done("status", "ok")
		}
	}()

	versionDir := paths.VersionDir(scope, ins.ProjectDir, registryHandle, node.Package.Repo, node.Package.Name, node.ResolvedVersion)
	if err = os.MkdirAll(versionDir, 0o755); err != nil {
		return nil, errs.New(errs.Filesystem, node.Package.Name, err)
	}

	if node.SubPackage != "" {
		entries, subErr := archive.DataEntries(archivePath, node.SubPackage)
		if subErr != nil {
			err = subErr
			return nil, err
		}
		if len(entries) == 0 {
			err = errs.Newf(errs.Filesystem, node.Package.Name, "archive carries no data for sub-package %q", node.SubPackage)
			return nil, err
		}
	}

	dataDir := filepath.Join(versionDir, "data")
	if _, err = archive.Extract(archivePath, node.SubPackage, dataDir); err != nil {
		return nil, err
	}

	metaRaw, err := archive.ReadFile(archivePath, "metadata.json")
	if err != nil {
		return nil, err
	}
	var meta model.FinalMetadata
	if err = json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, errs.New(errs.Filesystem, node.Package.Name, err)
	}

	var installedFiles []string

	for _, bin := range node.Package.Bins {
		binPath, linkErr := ins.linkBin(node, scope, dataDir, bin, meta)
		if linkErr != nil {
			err = linkErr
			return nil, err
		}
		installedFiles = append(installedFiles, binPath)
	}

	overlayFiles, overlayErr := ins.applyOverlays(node, scope, dataDir)
	if overlayErr != nil {
		err = overlayErr
		return nil, err
	}
	installedFiles = append(installedFiles, overlayFiles...)

	latestPtr := paths.LatestPointer(scope, ins.ProjectDir, registryHandle, node.Package.Repo, node.Package.Name)
	previousLatest, swingErr := swingLatest(latestPtr, versionDir)
	if swingErr != nil {
		err = swingErr
		return nil, err
	}

	manifest := &model.InstallManifest{
		Name:            node.Package.Name,
		SubPackage:      node.SubPackage,
		Version:         node.ResolvedVersion,
		Repo:            node.Package.Repo,
		RegistryHandle:  registryHandle,
		Scope:           scope,
		PackageType:     node.Package.Type,
		InstalledAt:     time.Now().UTC(),
		Reason:          node.Reason.String(),
		Bins:            node.Package.Bins,
		Provides:        node.Package.Provides,
		Conflicts:       node.Package.Conflicts,
		ChosenOptions:   node.ChosenOptions,
		ChosenOptionals: node.ChosenOptionals,
		InstallMethod:   installMethod,
		InstalledFiles:  installedFiles,
		Hooks:           node.Package.Hooks,
	}
	manifestData, marshalErr := yaml.Marshal(manifest)
	if marshalErr != nil {
		err = marshalErr
		return nil, err
	}
	manifestPath := filepath.Join(versionDir, "manifest.yaml")
	if err = os.WriteFile(manifestPath, manifestData, 0o644); err != nil {
		return nil, errs.New(errs.Filesystem, node.Package.Name, err)
	}

	return &Result{VersionDir: versionDir, Manifest: manifest, PreviousLatest: previousLatest}, nil
}

// linkBin locates bin inside dataDir (by binary_path hint, by name,
// by its .exe variant on Windows, falling back to the sole-file
// heuristic),
// makes it executable, and links it into the scope bin root.
func (ins *Installer) linkBin(node *model.InstallNode, scope model.Scope, dataDir, bin string, meta model.FinalMetadata) (string, error) {
	platform := runtime.GOOS
	src := ""

	if hint, ok := meta.Installation.BinaryPath[platform]; ok && hint != "" {
		src = filepath.Join(dataDir, filepath.FromSlash(hint))
	}

	if src == "" {
		candidate := filepath.Join(dataDir, "usr", "bin", bin)
		if _, statErr := os.Stat(candidate); statErr == nil {
			src = candidate
		}
	}
	if src == "" && runtime.GOOS == "windows" {
		candidate := filepath.Join(dataDir, "usr", "bin", bin+".exe")
		if _, statErr := os.Stat(candidate); statErr == nil {
			src = candidate
		}
	}
	if src == "" {
		sole, soleErr := findSoleFile(filepath.Join(dataDir, "usr", "bin"))
		if soleErr == nil && sole != "" {
			src = sole
		}
	}
	if src == "" {
		return "", errs.Newf(errs.Filesystem, node.Package.Name, "could not locate binary %q in unpacked archive", bin)
	}

	if err := os.Chmod(src, 0o755); err != nil {
		return "", errs.New(errs.Filesystem, node.Package.Name, err)
	}

	binRoot := paths.BinRoot(scope, ins.ProjectDir)
	if err := os.MkdirAll(binRoot, 0o755); err != nil {
		return "", errs.New(errs.Filesystem, node.Package.Name, err)
	}
	dest := filepath.Join(binRoot, bin)
	_ = os.Remove(dest)

	if runtime.GOOS == "windows" {
		if err := copyFile(src, dest); err != nil {
			return "", errs.New(errs.Filesystem, node.Package.Name, err)
		}
	} else {
		if err := os.Symlink(src, dest); err != nil {
			return "", errs.New(errs.Filesystem, node.Package.Name, err)
		}
	}
	return dest, nil
}

func findSoleFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) != 1 {
		return "", errs.Newf(errs.Filesystem, "", "expected exactly one file in %s, found %d", dir, len(files))
	}
	if ok, err := conflict.ClassifySoleFile(files[0]); err != nil || !ok {
		return "", errs.Newf(errs.Filesystem, "", "sole file in %s does not look executable", dir)
	}
	return files[0], nil
}

// applyOverlays walks the data/[sub/]usrroot and data/[sub/]usrhome
// subtrees already unpacked under dataDir and applies them onto the
// real filesystem: symlinks preferred for user scope, copies required
// for system scope.
func (ins *Installer) applyOverlays(node *model.InstallNode, scope model.Scope, dataDir string) ([]string, error) {
	kind := "usrhome"
	root := ins.HomeDir
	if scope == model.ScopeSystem {
		kind = "usrroot"
		root = string(os.PathSeparator)
	}

	overlayDir := filepath.Join(dataDir, kind)
	if _, err := os.Stat(overlayDir); os.IsNotExist(err) {
		return nil, nil
	}

	var written []string
	walkErr := filepath.Walk(overlayDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(overlayDir, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(root, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if scope == model.ScopeSystem {
			if err := copyFile(p, dest); err != nil {
				return err
			}
		} else {
			_ = os.Remove(dest)
			if err := os.Symlink(p, dest); err != nil {
				return err
			}
		}
		written = append(written, dest)
		return nil
	})
	if walkErr != nil {
		return nil, errs.New(errs.Filesystem, node.Package.Name, walkErr)
	}
	return written, nil
}

// swingLatest removes any existing `latest` indirection and points it
// at versionDir, returning the previous target (if any) so the
// journal can restore it on rollback.
func swingLatest(latestPtr, versionDir string) (previous string, err error) {
	if target, readErr := os.Readlink(latestPtr); readErr == nil {
		previous = target
	}
	_ = os.Remove(latestPtr)
	if runtime.GOOS == "windows" {
		if err := os.MkdirAll(latestPtr, 0o755); err != nil {
			return previous, errs.New(errs.Filesystem, "", err)
		}
		// Windows directory junctions require platform-specific syscalls
		// not exercised by this build; a copy-based indirection keeps the
		// same `latest` contract on that platform.
		if err := copyTree(versionDir, latestPtr); err != nil {
			return previous, err
		}
		return previous, nil
	}
	if err := os.Symlink(versionDir, latestPtr); err != nil {
		return previous, errs.New(errs.Filesystem, "", err)
	}
	return previous, nil
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, info.Mode())
}

func copyTree(srcDir, destDir string) error {
	return filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(srcDir, p)
		if relErr != nil {
			return relErr
		}
		dest := filepath.Join(destDir, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		return copyFile(p, dest)
	})
}

