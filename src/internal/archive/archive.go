// Package archive reads and writes the Zstandard-compressed tar
// layout every installable artifact uses: listing for dry-run
// conflict scans, extraction of the data subtree, single-entry reads
// for metadata, and sealing a staged build into the same format.
package archive

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/zoi-pm/zoi/src/internal/errs"
)

// Entry is one file the archive would write, relative to the archive
// root (e.g. "data/usr/bin/foo", "data/sub1/files/README").
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	Mode    fs.FileMode
	LinkTgt string // non-empty for symlinks
}

// openTarReader opens path and wraps it in a zstd-decompressing tar
// reader. Caller must call the returned close func.
func openTarReader(path string) (*tar.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errs.New(errs.Filesystem, path, err)
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, errs.New(errs.Filesystem, path, err)
	}
	tr := tar.NewReader(zr)
	closer := func() error {
		zr.Close()
		return f.Close()
	}
	return tr, closer, nil
}

// List enumerates every entry in the archive without writing
// anything to disk, used by the conflict checker's dry-extract scan.
func List(path string) ([]Entry, error) {
	tr, closer, err := openTarReader(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	var entries []Entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.New(errs.Filesystem, path, err)
		}
		entries = append(entries, Entry{
			Name:    hdr.Name,
			IsDir:   hdr.Typeflag == tar.TypeDir,
			Size:    hdr.Size,
			Mode:    fs.FileMode(hdr.Mode),
			LinkTgt: hdr.Linkname,
		})
	}
	return entries, nil
}

// DataEntries filters List's output to the data/[sub/] subtree for
// the given sub-package (empty sub means the default subtree).
func DataEntries(path, sub string) ([]Entry, error) {
	all, err := List(path)
	if err != nil {
		return nil, err
	}
	prefix := "data/"
	if sub != "" {
		prefix = "data/" + sub + "/"
	}
	var out []Entry
	for _, e := range all {
		if strings.HasPrefix(e.Name, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Extract unpacks every entry under data/[sub/] into destDir,
// preserving mode bits and symlinks.
func Extract(path, sub, destDir string) ([]string, error) {
	tr, closer, err := openTarReader(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	prefix := "data/"
	if sub != "" {
		prefix = "data/" + sub + "/"
	}

	var written []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.New(errs.Filesystem, path, err)
		}
		if !strings.HasPrefix(hdr.Name, prefix) {
			continue
		}
		rel := strings.TrimPrefix(hdr.Name, prefix)
		if rel == "" {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, errs.New(errs.Filesystem, dest, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return nil, errs.New(errs.Filesystem, dest, err)
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return nil, errs.New(errs.Filesystem, dest, err)
			}
			written = append(written, dest)
		default:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return nil, errs.New(errs.Filesystem, dest, err)
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return nil, errs.New(errs.Filesystem, dest, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return nil, errs.New(errs.Filesystem, dest, err)
			}
			out.Close()
			written = append(written, dest)
		}
	}
	return written, nil
}

// ReadFile returns the content of a single named entry (e.g.
// "metadata.json"), used to read metadata without a full extraction.
func ReadFile(path, name string) ([]byte, error) {
	tr, closer, err := openTarReader(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.New(errs.Filesystem, path, err)
		}
		if hdr.Name == name {
			return io.ReadAll(tr)
		}
	}
	return nil, errs.Newf(errs.Filesystem, path, "archive has no entry %q", name)
}

// StagedFile describes one file to seal into a new archive, used by
// the source builder after a build produces a staging layout.
type StagedFile struct {
	ArchiveName string // e.g. "data/usr/bin/foo", "metadata.json"
	SourcePath  string // absolute path on disk, empty for directories
	IsDir       bool
	Mode        fs.FileMode
}

// Seal writes a Zstandard-tar archive at outPath containing exactly
// the listed files, each under its ArchiveName, in ArchiveName order.
// It does not walk any directory; files not listed are not included.
func Seal(outPath string, files []StagedFile) error {
	sort.Slice(files, func(i, j int) bool { return files[i].ArchiveName < files[j].ArchiveName })

	out, err := os.Create(outPath)
	if err != nil {
		return errs.New(errs.Filesystem, outPath, err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return errs.New(errs.Filesystem, outPath, err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	for _, f := range files {
		if f.IsDir {
			hdr := &tar.Header{Name: f.ArchiveName + "/", Typeflag: tar.TypeDir, Mode: int64(f.Mode.Perm())}
			if err := tw.WriteHeader(hdr); err != nil {
				return errs.New(errs.Filesystem, outPath, err)
			}
			continue
		}
		info, err := os.Lstat(f.SourcePath)
		if err != nil {
			return errs.New(errs.Filesystem, f.SourcePath, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(f.SourcePath)
			if err != nil {
				return errs.New(errs.Filesystem, f.SourcePath, err)
			}
			hdr := &tar.Header{Name: f.ArchiveName, Typeflag: tar.TypeSymlink, Linkname: target}
			if err := tw.WriteHeader(hdr); err != nil {
				return errs.New(errs.Filesystem, outPath, err)
			}
			continue
		}
		data, err := os.ReadFile(f.SourcePath)
		if err != nil {
			return errs.New(errs.Filesystem, f.SourcePath, err)
		}
		hdr := &tar.Header{
			Name:     f.ArchiveName,
			Typeflag: tar.TypeReg,
			Size:     int64(len(data)),
			Mode:     int64(info.Mode().Perm()),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return errs.New(errs.Filesystem, outPath, err)
		}
		if _, err := tw.Write(data); err != nil {
			return errs.New(errs.Filesystem, outPath, err)
		}
	}
	return nil
}
