// Package cache is the archive staging/cache area shared by the
// downloader and the installer: downloads land in a staging file keyed
// by archive filename (so an interrupted transfer can resume), and
// move to the archive area only after verification.
package cache

import (
	"os"
	"path/filepath"

	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

type Store struct {
	Root string
}

func New(root string) (*Store, error) {
	s := &Store{Root: root}
	if err := os.MkdirAll(s.stagingDir(), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.archiveDir(), 0o755); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) stagingDir() string { return filepath.Join(s.Root, "staging") }
func (s *Store) archiveDir() string { return filepath.Join(s.Root, "archives") }

// StagingPath is where a download-in-progress for filename lives.
func (s *Store) StagingPath(filename string) string {
	return filepath.Join(s.stagingDir(), filename)
}

// ArchivePath is where a fully verified archive lives.
func (s *Store) ArchivePath(filename string) string {
	return filepath.Join(s.archiveDir(), filename)
}

// Has reports whether a committed, verified archive already exists.
func (s *Store) Has(filename string) bool {
	_, err := os.Stat(s.ArchivePath(filename))
	return err == nil
}

// PartialSize returns the size of an in-progress staging file, and
// whether one exists at all, supporting the Range-request resume
// path.
func (s *Store) PartialSize(filename string) (int64, bool) {
	info, err := os.Stat(s.StagingPath(filename))
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// OpenForAppend opens (creating if absent) the staging file for
// filename positioned for append, used to resume or start a
// download.
func (s *Store) OpenForAppend(filename string) (*os.File, error) {
	return os.OpenFile(s.StagingPath(filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Truncate resets a staging file to zero length, used when the
// server refuses a Range request and the download must restart.
func (s *Store) Truncate(filename string) error {
	return os.Truncate(s.StagingPath(filename), 0)
}

// Commit moves a fully verified staging file into the archive area.
func (s *Store) Commit(filename string) error {
	done := telemetry.StartSpan("cache.commit", "filename", filename)
	err := os.Rename(s.StagingPath(filename), s.ArchivePath(filename))
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	done("status", "ok")
	return nil
}

// Discard removes both the staging and archive copies of filename,
// used when verification fails so a poisoned artifact never survives
// in the cache.
func (s *Store) Discard(filename string) error {
	_ = os.Remove(s.StagingPath(filename))
	if err := os.Remove(s.ArchivePath(filename)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
