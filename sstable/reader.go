package sstable

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/twlk9/lsmkv/directio"
	"github.com/twlk9/lsmkv/keys"
)

// PageCache holds decoded pages keyed by run name and page index.
// *bufferpool.BufferPool satisfies it.
type PageCache interface {
	Get(run string, index int) ([]keys.KVPair, bool)
	Put(run string, index int, page []keys.KVPair)
}

type ReaderOpts struct {
	DirectIO bool
	Logger   *slog.Logger
}

// Reader serves lookups and scans on one run. The header and sparse index
// are read once at open. A Reader is safe for concurrent use.
type Reader struct {
	mu sync.Mutex

	file   *directio.File
	path   string
	name   string
	logger *slog.Logger

	numPages   int
	numEntries int
	dataOffset int64
	index      []uint64 // last key of each page holding records

	raw     []byte        // aligned page read buffer
	decoded []keys.KVPair // page decode buffer
}

// OpenReader opens the run at path and loads its index.
func OpenReader(path string, opts ReaderOpts) (*Reader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	f, err := directio.Open(path, os.O_RDONLY, 0, opts.DirectIO)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		file:   f,
		path:   path,
		name:   filepath.Base(path),
		logger: opts.Logger,
	}
	if err := r.readIndex(); err != nil {
		f.Close()
		return nil, err
	}
	r.raw = directio.GetBuffer(PageSize)
	r.decoded = make([]keys.KVPair, 0, EntriesPerPage)
	return r, nil
}

func (r *Reader) readIndex() error {
	size, err := r.file.Size()
	if err != nil {
		return err
	}
	if size < IndexBlockSize+PageSize {
		return fmt.Errorf("%w: %s is %d bytes, too small for a run", keys.ErrCorruption, r.path, size)
	}

	region := directio.GetBuffer(IndexBlockSize)
	defer func() { directio.PutBuffer(region) }()
	if _, err := r.file.ReadAt(region, 0); err != nil {
		r.logger.Error("Failed to read run header", "error", err, "sstable", r.path)
		return err
	}
	h := decodeHeader(region)
	if err := h.validate(size); err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}

	indexSize := IndexSize(h.numEntries)
	if indexSize > IndexBlockSize {
		directio.PutBuffer(region)
		region = directio.GetBuffer(indexSize)
		if _, err := r.file.ReadAt(region, 0); err != nil {
			return err
		}
	}
	index, err := decodeIndex(region, h.numEntries)
	if err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}

	r.numPages = h.numPages
	r.numEntries = h.numEntries
	r.dataOffset = int64(indexSize)
	r.index = index
	return nil
}

// Name returns the run file name, the identity used in page caches.
func (r *Reader) Name() string { return r.name }

func (r *Reader) Path() string { return r.path }

// NumPages returns the number of data pages, including a sentinel-only page.
func (r *Reader) NumPages() int { return r.numPages }

// NumEntries returns the number of records, tombstones included.
func (r *Reader) NumEntries() int { return r.numEntries }

// pageEntries is the record count of page i.
func (r *Reader) pageEntries(i int) int {
	return max(0, min(EntriesPerPage, r.numEntries-i*EntriesPerPage))
}

// loadPage returns page i from cache or disk. Pages read from disk are
// offered to cache. The result is only valid until the next loadPage.
func (r *Reader) loadPage(i int, cache PageCache) ([]keys.KVPair, error) {
	if r.file == nil {
		return nil, directio.Wrap("pread", r.path, os.ErrClosed)
	}
	if cache != nil {
		if page, ok := cache.Get(r.name, i); ok {
			return page, nil
		}
	}
	_, err := r.file.ReadAt(r.raw, r.dataOffset+int64(i)*PageSize)
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s page %d truncated", keys.ErrCorruption, r.path, i)
	}
	if err != nil {
		r.logger.Error("Failed to read page", "error", err, "sstable", r.path, "page", i)
		return nil, err
	}
	page, err := decodePage(r.decoded, r.raw, r.pageEntries(i))
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", r.path, i, err)
	}
	if cache != nil {
		cache.Put(r.name, i, page)
	}
	return page, nil
}

func searchPage(page []keys.KVPair, key uint64) (uint64, bool) {
	i, found := slices.BinarySearchFunc(page, key, func(p keys.KVPair, k uint64) int {
		return cmp.Compare(p.Key, k)
	})
	if !found {
		return 0, false
	}
	return page[i].Value, true
}

// Lookup returns the stored value for key, tombstones included. It binary
// searches over pages, fetching each probe through cache.
func (r *Reader) Lookup(key uint64, cache PageCache) (uint64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lo, hi := 0, len(r.index)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		page, err := r.loadPage(mid, cache)
		if err != nil {
			return 0, false, err
		}
		switch {
		case key < page[0].Key:
			hi = mid - 1
		case key > page[len(page)-1].Key:
			lo = mid + 1
		default:
			v, ok := searchPage(page, key)
			return v, ok, nil
		}
	}
	return 0, false, nil
}

// Get returns the live value for key, or keys.ErrNotFound when the key is
// absent or deleted.
func (r *Reader) Get(key uint64, cache PageCache) (uint64, error) {
	v, ok, err := r.Lookup(key, cache)
	if err != nil {
		return 0, err
	}
	if !ok || v == keys.Tombstone {
		return 0, keys.ErrNotFound
	}
	return v, nil
}

// LookupIndexed is Lookup driven by the sparse index: the page is picked
// from the in-memory samples, so at most one page is fetched.
func (r *Reader) LookupIndexed(key uint64, cache PageCache) (uint64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.lowerBoundPage(key)
	if p < 0 {
		return 0, false, nil
	}
	page, err := r.loadPage(p, cache)
	if err != nil {
		return 0, false, err
	}
	v, ok := searchPage(page, key)
	return v, ok, nil
}

// GetIndexed is Get on top of LookupIndexed.
func (r *Reader) GetIndexed(key uint64, cache PageCache) (uint64, error) {
	v, ok, err := r.LookupIndexed(key, cache)
	if err != nil {
		return 0, err
	}
	if !ok || v == keys.Tombstone {
		return 0, keys.ErrNotFound
	}
	return v, nil
}

// lowerBoundPage returns the first page whose last key is >= key, or -1.
func (r *Reader) lowerBoundPage(key uint64) int {
	p := sort.Search(len(r.index), func(i int) bool { return r.index[i] >= key })
	if p == len(r.index) {
		return -1
	}
	return p
}

// Scan returns the live records with lo <= key <= hi in ascending order.
func (r *Reader) Scan(lo, hi uint64) ([]keys.KVPair, error) {
	return r.scan(lo, hi, false)
}

// Entries is Scan with tombstones kept.
func (r *Reader) Entries(lo, hi uint64) ([]keys.KVPair, error) {
	return r.scan(lo, hi, true)
}

// ReadAll returns every record of the run, tombstones included.
func (r *Reader) ReadAll() ([]keys.KVPair, error) {
	return r.scan(keys.MinKey, keys.MaxKey, true)
}

func (r *Reader) scan(lo, hi uint64, keepTombstones bool) ([]keys.KVPair, error) {
	if lo > hi {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.lowerBoundPage(lo)
	if start < 0 {
		return nil, nil
	}
	var out []keys.KVPair
	for i := start; i < len(r.index); i++ {
		page, err := r.loadPage(i, nil)
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			if p.Key > hi {
				return out, nil
			}
			if p.Key < lo || (!keepTombstones && p.IsTombstone()) {
				continue
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// Close releases the file and read buffers.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	directio.PutBuffer(r.raw)
	r.raw = nil
	return err
}
