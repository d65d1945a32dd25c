package lsmkv

import (
	"errors"

	"github.com/twlk9/lsmkv/bufferpool"
	"github.com/twlk9/lsmkv/directio"
	"github.com/twlk9/lsmkv/keys"
	"github.com/twlk9/lsmkv/sstable"
)

// Error definitions for the database, collected in one place. Errors that
// originate in a subpackage are re-exported so callers only need this one.
var (
	// ErrNotFound is returned when a key is absent or deleted
	ErrNotFound = keys.ErrNotFound

	// ErrDBClosed is returned when operating on a closed database
	ErrDBClosed = errors.New("database is closed")

	// ErrDBAlreadyOpen is returned when the directory is locked by another handle
	ErrDBAlreadyOpen = errors.New("database is already open by another process")

	// ErrCorruption is returned when data corruption is detected
	ErrCorruption = keys.ErrCorruption

	// ErrIOError matches every *IOError
	ErrIOError = directio.ErrIO

	// ErrReservedPair is returned when putting the end-of-block marker pair
	ErrReservedPair = keys.ErrReservedPair

	// ErrUnsupportedPolicy is returned for an unknown eviction policy
	ErrUnsupportedPolicy = bufferpool.ErrUnsupportedPolicy

	// ErrInvalidCapacity is returned for a buffer pool size that is not a power of two
	ErrInvalidCapacity = bufferpool.ErrInvalidCapacity

	// ErrUnsorted is returned when a run would be written out of order
	ErrUnsorted = sstable.ErrUnsorted

	// ErrDBExists is returned when ErrorIfExists is set and the database exists
	ErrDBExists = errors.New("database already exists")

	// ErrDBMissing is returned when CreateIfMissing is unset and there is no database
	ErrDBMissing = errors.New("database does not exist")

	// Configuration validation errors
	ErrInvalidPath            = errors.New("invalid database path")
	ErrInvalidMemtableSize    = errors.New("invalid memtable size")
	ErrInvalidMaxOpenFiles    = errors.New("invalid max open files")
	ErrInvalidExtendThreshold = bufferpool.ErrInvalidThreshold
)

// IOError is the typed error for failed file system operations. Match it
// with errors.As, or any instance with errors.Is(err, ErrIOError).
type IOError = directio.IOError
