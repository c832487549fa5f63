// Package lock implements the process-wide install lock: only one
// install/uninstall/upgrade may operate on an installation root at a
// time. Built on golang.org/x/sys/unix's flock on UNIX and
// golang.org/x/sys/windows's LockFileEx on Windows.
package lock

import (
	"fmt"
	"os"

	"github.com/zoi-pm/zoi/src/internal/errs"
)

// FileLock holds an advisory lock on a path for the life of the
// process (or until Release is called).
type FileLock struct {
	path string
	f    *os.File
}

// Acquire takes the lock at path, failing immediately (not blocking)
// if another process already holds it, so a second concurrent `zoi`
// invocation gets a clear "already locked" error rather than hanging.
func Acquire(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.New(errs.Lock, "", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, errs.New(errs.Lock, "", fmt.Errorf("another zoi operation holds %s: %w", path, err))
	}
	_ = f.Truncate(0)
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &FileLock{path: path, f: f}, nil
}

// Release drops the lock and closes the underlying file.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	closeErr := l.f.Close()
	if err != nil {
		return errs.New(errs.Lock, "", err)
	}
	if closeErr != nil {
		return errs.New(errs.Lock, "", closeErr)
	}
	return nil
}
