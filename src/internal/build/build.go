// Package build produces an installable archive from source: clone
// (or fetch a tarball), run the declared platform build commands in a
// scratch directory, discover the produced binaries, and seal the
// staging layout into the same archive format a prebuilt download
// uses.
package build

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/codeclysm/extract/v3"
	"github.com/ulikunitz/xz"

	"github.com/zoi-pm/zoi/src/internal/archive"
	"github.com/zoi-pm/zoi/src/internal/conflict"
	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

// SourceKind distinguishes a git-cloned source from a plain tarball
// source fetched over HTTP.
type SourceKind string

const (
	SourceGit     SourceKind = "git"
	SourceTarball SourceKind = "tarball"
)

// Builder runs the clone/build/stage sequence and hands the result to
// an archive.Seal call producing an installable archive.
type Builder struct {
	WorkRoot string // parent directory for scratch build directories
}

type Result struct {
	ArchivePath string
}

// Build produces an installable archive for node, given the chosen
// installation method and the build type selected by the planner.
func (b *Builder) Build(node *model.InstallNode, method model.InstallationMethod, buildType model.BuildableForm, kind SourceKind) (*Result, error) {
	done := telemetry.StartSpan("build.run", "name", node.Package.Name, "version", node.ResolvedVersion)
	var err error
	defer func() {
		if err != nil {
			done("status", "error", "error", err.Error())
		} else {
			done("status", "ok")
		}
	}()

	buildDir, mkErr := os.MkdirTemp(b.WorkRoot, "zoi-build-*")
	if mkErr != nil {
		err = errs.New(errs.Build, node.Package.Name, mkErr)
		return nil, err
	}
	defer os.RemoveAll(buildDir)

	srcDir := filepath.Join(buildDir, "src")

	if method.Tag != "" && method.Branch != "" {
		err = errs.Newf(errs.Build, node.Package.Name, "both tag and branch specified; use only one")
		return nil, err
	}

	switch kind {
	case SourceTarball:
		if err = fetchAndExtractTarball(method.URL, srcDir); err != nil {
			return nil, err
		}
	default:
		if err = cloneGit(method.URL, srcDir, method.Tag, method.Branch); err != nil {
			return nil, err
		}
	}

	stagingDir := filepath.Join(buildDir, "stage")
	binDir := filepath.Join(stagingDir, "usr", "bin")
	if err = os.MkdirAll(binDir, 0o755); err != nil {
		err = errs.New(errs.Build, node.Package.Name, err)
		return nil, err
	}

	platform := runtime.GOOS
	commands := method.BuildCommands[platform]
	for _, raw := range commands {
		cmdStr := strings.ReplaceAll(raw, "{prefix}", stagingDir)
		if runErr := runBuildCommand(cmdStr, srcDir); runErr != nil {
			err = errs.New(errs.Build, node.Package.Name, runErr)
			return nil, err
		}
	}

	binaries, findErr := discoverBinaries(node, srcDir, binDir)
	if findErr != nil {
		err = findErr
		return nil, err
	}

	metaPath, metaErr := writeMetadata(buildDir, node, string(buildType))
	if metaErr != nil {
		err = metaErr
		return nil, err
	}

	files := []archive.StagedFile{{ArchiveName: "metadata.json", SourcePath: metaPath}}
	for _, bin := range binaries {
		files = append(files, archive.StagedFile{
			ArchiveName: "data/usr/bin/" + bin.name,
			SourcePath:  bin.path,
			Mode:        0o755,
		})
	}

	outPath := filepath.Join(b.WorkRoot, node.Package.Name+"-"+node.ResolvedVersion+".pkg.tar.zst")
	if err = archive.Seal(outPath, files); err != nil {
		return nil, err
	}

	return &Result{ArchivePath: outPath}, nil
}

func cloneGit(url, dest, tag, branch string) error {
	if out, err := runCapture(exec.Command("git", "clone", url, dest)); err != nil {
		return errs.Newf(errs.Build, "", "git clone failed: %v: %s", err, out)
	}
	if tag != "" {
		if out, err := runCaptureDir(dest, exec.Command("git", "checkout", "tags/"+tag)); err != nil {
			return errs.Newf(errs.Build, "", "git checkout tag %q failed: %v: %s", tag, err, out)
		}
	} else if branch != "" {
		if out, err := runCaptureDir(dest, exec.Command("git", "checkout", branch)); err != nil {
			return errs.Newf(errs.Build, "", "git checkout branch %q failed: %v: %s", branch, err, out)
		}
	}
	return nil
}

// fetchAndExtractTarball handles the non-git source case: a plain
// tarball unpacked before any build command runs. codeclysm/extract auto-detects zip/tar.gz/tar.bz2 from
// the stream's magic bytes, but doesn't know tar.xz, so that one format
// is unpacked by hand with ulikunitz/xz ahead of the tar reader.
func fetchAndExtractTarball(url, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errs.New(errs.Build, "", err)
	}
	resp, fetchErr := httpGet(url)
	if fetchErr != nil {
		return errs.New(errs.Network, "", fetchErr)
	}
	defer resp.Close()

	if strings.HasSuffix(url, ".tar.xz") || strings.HasSuffix(url, ".txz") {
		return extractTarXz(resp, dest)
	}
	if err := extract.Archive(context.Background(), resp, dest, nil); err != nil {
		return errs.New(errs.Build, "", err)
	}
	return nil
}

func extractTarXz(r io.Reader, dest string) error {
	xr, err := xz.NewReader(r)
	if err != nil {
		return errs.New(errs.Build, "", err)
	}
	tr := tar.NewReader(xr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errs.New(errs.Build, "", err)
		}
		target := filepath.Join(dest, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errs.New(errs.Build, "", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errs.New(errs.Build, "", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return errs.New(errs.Build, "", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return errs.New(errs.Build, "", err)
			}
			f.Close()
		}
	}
}

func runBuildCommand(cmdStr, dir string) error {
	shell, flag := "bash", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "pwsh", "-Command"
	}
	cmd := exec.Command(shell, flag, cmdStr)
	cmd.Dir = dir
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return errs.Newf(errs.Build, "", "build command %q failed: %v: %s", cmdStr, err, combined.String())
	}
	return nil
}

func runCapture(cmd *exec.Cmd) (string, error) {
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func runCaptureDir(dir string, cmd *exec.Cmd) (string, error) {
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

type namedBinary struct {
	name string
	path string
}

// discoverBinaries resolves the built binaries: the declared bins[]
// list when present, else the sole-file heuristic, else a
// platform-named fallback.
func discoverBinaries(node *model.InstallNode, srcDir, binDir string) ([]namedBinary, error) {
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return nil, errs.New(errs.Build, node.Package.Name, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(binDir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, nil
	}

	if len(node.Package.Bins) > 0 {
		var out []namedBinary
		for _, want := range node.Package.Bins {
			found := ""
			for _, f := range files {
				base := filepath.Base(f)
				if base == want || (runtime.GOOS == "windows" && base == want+".exe") {
					found = f
					break
				}
			}
			if found == "" {
				return nil, errs.Newf(errs.Build, node.Package.Name, "expected binary %q not found after build", want)
			}
			out = append(out, namedBinary{name: want, path: found})
		}
		return out, nil
	}

	if len(files) == 1 {
		base := filepath.Base(files[0])
		name := strings.TrimSuffix(base, filepath.Ext(base))
		return []namedBinary{{name: name, path: files[0]}}, nil
	}

	osSpecific := node.Package.Name
	if runtime.GOOS == "windows" {
		osSpecific += ".exe"
	}
	for _, f := range files {
		if filepath.Base(f) == osSpecific {
			return []namedBinary{{name: node.Package.Name, path: f}}, nil
		}
	}

	if ok, sErr := soleFileLooksExecutable(files); sErr == nil && ok {
		base := filepath.Base(files[0])
		return []namedBinary{{name: strings.TrimSuffix(base, filepath.Ext(base)), path: files[0]}}, nil
	}

	return nil, errs.Newf(errs.Build, node.Package.Name, "build produced multiple files; specify bins[] to disambiguate")
}

func soleFileLooksExecutable(files []string) (bool, error) {
	if len(files) != 1 {
		return false, nil
	}
	return conflict.ClassifySoleFile(files[0])
}

func httpGet(url string) (io.ReadCloser, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errs.Newf(errs.Network, "", "tarball fetch %s returned status %s", url, resp.Status)
	}
	return resp.Body, nil
}

// writeMetadata serializes the node's definition into the
// metadata.json a sealed archive carries.
func writeMetadata(dir string, node *model.InstallNode, installType string) (string, error) {
	meta := model.FinalMetadata{
		Name:        node.Package.Name,
		Version:     node.ResolvedVersion,
		Description: node.Package.Description,
		Repo:        node.Package.Repo,
		License:     node.Package.License,
		Git:         node.Package.Git,
		Author:      node.Package.Author,
		Maintainer: model.MetadataMaintainer{
			Name:    node.Package.Maintainer.Name,
			Email:   node.Package.Maintainer.Email,
			Key:     node.Package.Maintainer.Key,
			OneTime: node.Package.Maintainer.OneTime,
		},
		Installation: model.MetadataInstall{InstallType: installType},
		Bins:         node.Package.Bins,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", errs.New(errs.Build, node.Package.Name, err)
	}
	path := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errs.New(errs.Build, node.Package.Name, err)
	}
	return path, nil
}
