package lsmkv

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/twlk9/lsmkv/bufferpool"
	"github.com/twlk9/lsmkv/keys"
	"github.com/twlk9/lsmkv/memtable"
	"github.com/twlk9/lsmkv/sstable"
)

// DB is an open database. It owns the memtable, the run catalog, the reader
// cache and the buffer pool. One coarse mutex serialises every call, so a
// handle may be shared between goroutines but work is never parallel.
type DB struct {
	options *Options
	path    string
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool

	// Writes land here until the budget runs out.
	memtable *memtable.MemTable
	// Persisted counters. MemtableSize is authoritative once the database
	// exists.
	meta Metadata
	// Live runs, oldest added first.
	catalog *catalog

	files   *FileCache
	pool    *bufferpool.BufferPool
	lock    Locker
	metrics *dbMetrics
	// Pool collectors, owned here so Close can unregister them.
	poolMetrics *bufferpool.Metrics
}

// Stats is a point-in-time view of the database.
type Stats struct {
	Metadata          Metadata
	MemtableEntries   int
	MemtableRemaining int
	Runs              int
	OpenReaders       int
	BufferPool        bufferpool.Stats
}

// Open opens the database at opts.Path, creating it when missing and
// CreateIfMissing is set. A new database gets its metadata written right
// away. An existing one has its metadata loaded and its run catalog rebuilt
// from the directory, ordered by creation time.
func Open(opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.Clone()

	logger := opts.Logger
	if logger == nil {
		logger = DefaultLogger()
		opts.Logger = logger
	}

	if err := opts.Validate(); err != nil {
		logger.Error("Options did not validate", "error", err, "path", opts.Path)
		return nil, err
	}

	dbExists := false
	if _, err := os.Stat(filepath.Join(opts.Path, metadataFileName)); err == nil {
		dbExists = true
	}
	if opts.ErrorIfExists && dbExists {
		logger.Error("database already exists at path", "error", ErrDBExists, "path", opts.Path)
		return nil, ErrDBExists
	}
	if !opts.CreateIfMissing && !dbExists {
		logger.Error("database does not exist at path", "error", ErrDBMissing, "path", opts.Path)
		return nil, ErrDBMissing
	}

	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		logger.Error("Failed to create database directory", "error", err, "path", opts.Path)
		return nil, err
	}

	lock, err := newFileLocker(opts.Path)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		logger.Error("Failed to lock database directory", "error", err, "path", opts.Path)
		return nil, err
	}

	db := &DB{
		options: opts,
		path:    opts.Path,
		logger:  logger,
		lock:    lock,
	}
	if err := db.recover(); err != nil {
		lock.Unlock()
		return nil, err
	}

	logger.Info("Opened database",
		"path", db.path,
		"runs", len(db.catalog.runs),
		"memtable_size", db.meta.MemtableSize,
		"next_run_id", db.meta.NextRunID,
		"num_elems", db.meta.NumElems,
		"policy", opts.Policy)
	return db, nil
}

// OpenPath opens or creates the database in directory name with default
// options apart from the memtable budget and the page replacement policy.
func OpenPath(name string, memtableSize int, policy bufferpool.Policy) (*DB, error) {
	opts := DefaultOptions()
	opts.Path = name
	opts.MemtableSize = memtableSize
	opts.Policy = policy
	return Open(opts)
}

// recover loads or initialises the on-disk state and builds the in-memory
// components around it.
func (db *DB) recover() error {
	if err := db.cleanupTempFiles(); err != nil {
		db.logger.Warn("Failed to cleanup orphaned temp files", "error", err)
	}

	meta, found, err := readMetadata(db.path, db.options.DirectIO)
	if err != nil {
		db.logger.Error("Failed to read metadata", "error", err, "path", db.path)
		return err
	}
	cat, skipped, err := loadCatalog(db.path)
	if err != nil {
		return err
	}
	for _, name := range skipped {
		db.logger.Warn("Invalid run filename, skipping", "filename", name)
	}
	db.catalog = cat
	if err := db.removeSuperseded(); err != nil {
		return err
	}

	if !found {
		if len(cat.runs) > 0 {
			return fmt.Errorf("%w: %s holds %d runs but no metadata", ErrCorruption, db.path, len(cat.runs))
		}
		meta = Metadata{MemtableSize: int32(db.options.MemtableSize)}
		if err := writeMetadata(db.path, meta, db.options.DirectIO); err != nil {
			db.logger.Error("Failed to write initial metadata", "error", err, "path", db.path)
			return err
		}
	} else if int(meta.MemtableSize) != db.options.MemtableSize {
		db.logger.Debug("Using stored memtable size",
			"stored", meta.MemtableSize, "requested", db.options.MemtableSize)
	}

	if reg := db.options.MetricsRegisterer; reg != nil {
		if db.metrics, err = newDBMetrics(reg); err != nil {
			return err
		}
		if db.poolMetrics, err = bufferpool.NewMetrics(metricsNamespace, reg); err != nil {
			db.unregisterMetrics()
			return err
		}
	}
	pool, err := bufferpool.New(db.options.poolOptions(db.poolMetrics))
	if err != nil {
		db.unregisterMetrics()
		return err
	}

	db.meta = meta
	db.catalog = cat
	db.pool = pool
	db.files = NewFileCache(db.path, db.options.MaxOpenFiles,
		sstable.ReaderOpts{DirectIO: db.options.DirectIO}, db.logger)
	db.memtable = memtable.New(int(meta.MemtableSize))
	db.metrics.liveRuns(len(cat.runs))
	return nil
}

// Close flushes whatever the memtable still holds, persists the metadata
// and releases every resource. Safe to call multiple times.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error
	if db.memtable.Len() > 0 {
		if err := db.flushLocked(); err != nil {
			db.logger.Error("Failed to flush memtable on close", "error", err)
			errs = append(errs, err)
		}
	}
	if err := writeMetadata(db.path, db.meta, db.options.DirectIO); err != nil {
		db.logger.Error("Failed to write metadata on close", "error", err)
		errs = append(errs, err)
	}
	if err := db.files.Close(); err != nil {
		errs = append(errs, err)
	}
	pages := db.pool.Close()
	db.unregisterMetrics()
	if err := db.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}

	db.logger.Info("Closed database",
		"path", db.path,
		"runs", len(db.catalog.runs),
		"pages_released", pages,
		"next_run_id", db.meta.NextRunID,
		"num_elems", db.meta.NumElems)
	return errors.Join(errs...)
}

func (db *DB) unregisterMetrics() {
	db.metrics.unregister()
	db.poolMetrics.Unregister()
	db.metrics, db.poolMetrics = nil, nil
}

// Put writes key. When the write exhausts the memtable budget the memtable
// is flushed before Put returns.
func (db *DB) Put(key, value uint64) error {
	if (keys.KVPair{Key: key, Value: value}).IsNull() {
		return ErrReservedPair
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBClosed
	}

	db.meta.NumElems++
	db.metrics.put(value == keys.Tombstone)
	if !db.memtable.Put(key, value) {
		return db.flushLocked()
	}
	return nil
}

// Delete removes key by writing a tombstone over it.
func (db *DB) Delete(key uint64) error {
	return db.Put(key, keys.Tombstone)
}

// Get returns the newest value of key, or ErrNotFound when the key was never
// written or its newest version is a tombstone.
func (db *DB) Get(key uint64) (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, ErrDBClosed
	}

	if v, ok := db.memtable.Lookup(key); ok {
		db.metrics.get("memtable")
		return live(v)
	}

	for _, name := range db.catalog.newestFirst() {
		r, err := db.files.Get(name)
		if err != nil {
			return 0, err
		}
		var v uint64
		var ok bool
		if db.options.IndexedLookups {
			v, ok, err = r.LookupIndexed(key, db.pool)
		} else {
			v, ok, err = r.Lookup(key, db.pool)
		}
		if err != nil {
			db.logger.Error("Failed to search run", "error", err, "run", name, "key", key)
			return 0, err
		}
		if ok {
			db.metrics.get("run")
			return live(v)
		}
	}
	db.metrics.get("miss")
	return 0, ErrNotFound
}

func live(v uint64) (uint64, error) {
	if v == keys.Tombstone {
		return 0, ErrNotFound
	}
	return v, nil
}

// Scan returns the live pairs with lo <= key <= hi in ascending key order.
// Each key appears once, with its newest value.
func (db *DB) Scan(lo, hi uint64) ([]keys.KVPair, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrDBClosed
	}
	db.metrics.scan()

	if lo > hi {
		return nil, nil
	}
	it, err := db.mergeIteratorLocked(lo, hi)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	it.SeekToFirst()
	return it.collect()
}

// Flush forces the memtable to disk even if its budget is not spent.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBClosed
	}
	return db.flushLocked()
}

// ResizeBufferPool changes the maximum directory size of the buffer pool.
func (db *DB) ResizeBufferPool(capacity int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBClosed
	}
	if err := db.pool.Resize(capacity); err != nil {
		db.logger.Error("Failed to resize buffer pool", "error", err, "capacity", capacity)
		return err
	}
	return nil
}

// Metadata returns the counters that are persisted on close.
func (db *DB) Metadata() Metadata {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.meta
}

// Runs returns the run catalog, oldest added first.
func (db *DB) Runs() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.catalog.names()
}

// Stats returns a snapshot of database statistics for monitoring and
// debugging.
func (db *DB) Stats() Stats {
	db.mu.Lock()
	defer db.mu.Unlock()
	return Stats{
		Metadata:          db.meta,
		MemtableEntries:   db.memtable.Len(),
		MemtableRemaining: db.memtable.Remaining(),
		Runs:              len(db.catalog.runs),
		OpenReaders:       db.files.Len(),
		BufferPool:        db.pool.Stats(),
	}
}

// Path returns the database directory.
func (db *DB) Path() string {
	return db.path
}
