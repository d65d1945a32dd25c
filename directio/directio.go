// Package directio opens files for cache-bypassing I/O and hands out the
// block-aligned buffers such I/O requires.
//
// O_DIRECT is requested on Linux and F_NOCACHE is set on Darwin. File
// systems that refuse direct access (tmpfs, for one) transparently fall back
// to buffered I/O; the alignment rules are still enforced so the on-disk
// layout stays valid for a direct reader.
package directio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"

	"github.com/google/uuid"
)

const (
	// BlockSize is the alignment of buffers, offsets and lengths.
	BlockSize = 512

	// TempSuffix marks files that are still being written.
	TempSuffix = ".tmp"
)

var (
	// ErrIO is matched by every IOError via errors.Is.
	ErrIO = errors.New("I/O error")

	// ErrMisaligned is returned when a direct transfer breaks the alignment rules.
	ErrMisaligned = errors.New("buffer, offset or length not block aligned")
)

// IOError describes a failed file system operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIO) true for any IOError.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// Wrap converts err into an *IOError; nil and io.EOF pass through untouched.
func Wrap(op, path string, err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// AlignedBlock returns a zeroed buffer of size bytes whose first byte sits on
// a BlockSize boundary.
func AlignedBlock(size int) []byte {
	buf := make([]byte, size+BlockSize)
	off := 0
	if r := alignment(buf); r != 0 {
		off = BlockSize - r
	}
	return buf[off : off+size : off+size]
}

func alignment(b []byte) int {
	return int(uintptr(unsafe.Pointer(unsafe.SliceData(b))) & uintptr(BlockSize-1))
}

// IsAligned reports whether b starts on a BlockSize boundary.
func IsAligned(b []byte) bool {
	return cap(b) == 0 || alignment(b) == 0
}

// RoundUp rounds n up to a multiple of m.
func RoundUp(n, m int) int {
	if m == 0 {
		return n
	}
	if r := n % m; r != 0 {
		return n + m - r
	}
	return n
}

// File is an open file with the direct flag that actually took effect.
type File struct {
	f      *os.File
	path   string
	direct bool
}

// Open opens path, asking for direct I/O when direct is set.
func Open(path string, flag int, perm os.FileMode, direct bool) (*File, error) {
	if direct {
		f, err := os.OpenFile(path, flag|directFlag, perm)
		if err == nil {
			if setNoCache(f) == nil {
				return &File{f: f, path: path, direct: true}, nil
			}
			return &File{f: f, path: path}, nil
		}
		// EINVAL means the file system does not do direct I/O.
		if !errors.Is(err, syscall.EINVAL) {
			return nil, Wrap("open", path, err)
		}
	}
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, Wrap("open", path, err)
	}
	return &File{f: f, path: path}, nil
}

// Direct reports whether the file bypasses the page cache.
func (f *File) Direct() bool { return f.direct }

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

func (f *File) checkAligned(buf []byte, off int64) error {
	if !f.direct {
		return nil
	}
	if !IsAligned(buf) || len(buf)%BlockSize != 0 || off%BlockSize != 0 {
		return ErrMisaligned
	}
	return nil
}

// ReadAt reads len(buf) bytes at off. A short read at end of file returns
// io.EOF unwrapped.
func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	if err := f.checkAligned(buf, off); err != nil {
		return 0, Wrap("pread", f.path, err)
	}
	n, err := f.f.ReadAt(buf, off)
	return n, Wrap("pread", f.path, err)
}

// WriteAt writes buf at off.
func (f *File) WriteAt(buf []byte, off int64) (int, error) {
	if err := f.checkAligned(buf, off); err != nil {
		return 0, Wrap("pwrite", f.path, err)
	}
	n, err := f.f.WriteAt(buf, off)
	return n, Wrap("pwrite", f.path, err)
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	st, err := f.f.Stat()
	if err != nil {
		return 0, Wrap("stat", f.path, err)
	}
	return st.Size(), nil
}

// Sync flushes file data to stable storage.
func (f *File) Sync() error {
	return Wrap("fdatasync", f.path, datasync(f.f))
}

// Close closes the file.
func (f *File) Close() error {
	return Wrap("close", f.path, f.f.Close())
}

// WriteFileAtomic writes data to a uniquely named temp file next to path,
// syncs it and renames it into place. data must be block aligned.
func WriteFileAtomic(path string, data []byte, perm os.FileMode, direct bool) error {
	tmp := fmt.Sprintf("%s.%s%s", path, uuid.NewString(), TempSuffix)
	f, err := Open(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm, direct)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Wrap("rename", tmp, err)
	}
	return SyncDir(filepath.Dir(path))
}

// SyncDir fsyncs a directory so renames and removals inside it are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return Wrap("open", dir, err)
	}
	defer d.Close()
	return Wrap("fsync", dir, d.Sync())
}
