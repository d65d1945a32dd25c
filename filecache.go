package lsmkv

import (
	"container/list"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/twlk9/lsmkv/sstable"
)

// FileCache keeps a bounded LRU of open run readers so lookups do not reopen
// and re-read the index of a run on every access.
type FileCache struct {
	mu       sync.Mutex
	dir      string
	capacity int
	opts     sstable.ReaderOpts
	closed   bool
	logger   *slog.Logger

	cache map[string]*list.Element
	lru   *list.List // front is most recently used
}

// NewFileCache creates a cache for runs in dir holding at most capacity
// readers.
func NewFileCache(dir string, capacity int, opts sstable.ReaderOpts, logger *slog.Logger) *FileCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})) // Effectively disable logging
	}
	opts.Logger = logger
	return &FileCache{
		dir:      dir,
		capacity: max(1, capacity),
		opts:     opts,
		logger:   logger,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the reader for run, opening it if needed. The reader stays
// usable until the next Get, Evict or Close.
func (fc *FileCache) Get(run string) (*sstable.Reader, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return nil, ErrDBClosed
	}

	if elem, ok := fc.cache[run]; ok {
		fc.lru.MoveToFront(elem)
		return elem.Value.(*sstable.Reader), nil
	}

	path := filepath.Join(fc.dir, run)
	r, err := sstable.OpenReader(path, fc.opts)
	if err != nil {
		fc.logger.Error("Failed to open run", "error", err, "path", path,
			"cache_size", fc.lru.Len(), "cache_capacity", fc.capacity)
		return nil, err
	}

	for fc.lru.Len() >= fc.capacity {
		fc.evictLRU()
	}
	fc.cache[run] = fc.lru.PushFront(r)
	return r, nil
}

// Evict closes and forgets the reader for run, if open.
func (fc *FileCache) Evict(run string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if elem, ok := fc.cache[run]; ok {
		fc.remove(elem)
	}
}

// Len returns the number of open readers.
func (fc *FileCache) Len() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.lru.Len()
}

// Close closes every cached reader.
func (fc *FileCache) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return nil
	}
	fc.closed = true

	var firstErr error
	for fc.lru.Len() > 0 {
		if err := fc.remove(fc.lru.Back()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Must be called with fc.mu held
func (fc *FileCache) evictLRU() {
	if elem := fc.lru.Back(); elem != nil {
		fc.remove(elem)
	}
}

// Must be called with fc.mu held
func (fc *FileCache) remove(elem *list.Element) error {
	r := fc.lru.Remove(elem).(*sstable.Reader)
	delete(fc.cache, r.Name())
	err := r.Close()
	if err != nil {
		fc.logger.Warn("Failed to close run reader", "error", err, "path", r.Path())
	}
	return err
}
