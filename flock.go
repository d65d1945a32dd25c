//go:build !windows

package lsmkv

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const lockFileName = "LOCK"

// Locker is a file-based lock on a database directory.
type Locker interface {
	// Lock acquires the lock without blocking.
	Lock() error
	// Unlock releases the lock.
	Unlock() error
}

// fileLocker implements Locker with flock(2).
type fileLocker struct {
	file *os.File
}

// newFileLocker opens (creating if needed) the LOCK file inside dir.
func newFileLocker(dir string) (Locker, error) {
	lockPath := filepath.Join(dir, lockFileName)
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}
	return &fileLocker{file: file}, nil
}

// Lock takes an exclusive lock, failing with ErrDBAlreadyOpen if another
// handle holds it.
func (l *fileLocker) Lock() error {
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		l.file.Close()
		return ErrDBAlreadyOpen
	}
	if err != nil {
		l.file.Close()
		return fmt.Errorf("failed to acquire file lock: %w", err)
	}
	return nil
}

// Unlock releases the lock and closes the file.
func (l *fileLocker) Unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("failed to release file lock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	return nil
}
