package lsmkv

import (
	"sort"

	"github.com/twlk9/lsmkv/keys"
)

// Iterator provides an interface for iterating over key-value pairs in forward order.
type Iterator interface {
	// Valid returns true if the iterator is positioned at a valid element.
	Valid() bool

	// SeekToFirst positions the iterator at the first element.
	SeekToFirst()

	// Seek positions the iterator at the first element >= target.
	Seek(target uint64)

	// Next moves the iterator to the next element.
	Next()

	// Key returns the current key.
	Key() uint64

	// Value returns the current value.
	Value() uint64

	// Error returns any accumulated error.
	Error() error

	// Close releases any resources held by the iterator.
	Close() error
}

// sliceIterator walks a sorted, duplicate free slice of pairs.
type sliceIterator struct {
	pairs []keys.KVPair
	pos   int
}

func newSliceIterator(pairs []keys.KVPair) *sliceIterator {
	return &sliceIterator{pairs: pairs}
}

func (it *sliceIterator) Valid() bool  { return it.pos < len(it.pairs) }
func (it *sliceIterator) SeekToFirst() { it.pos = 0 }
func (it *sliceIterator) Next()        { it.pos++ }
func (it *sliceIterator) Key() uint64  { return it.pairs[it.pos].Key }
func (it *sliceIterator) Value() uint64 {
	return it.pairs[it.pos].Value
}
func (it *sliceIterator) Error() error { return nil }
func (it *sliceIterator) Close() error { it.pairs = nil; it.pos = 0; return nil }

func (it *sliceIterator) Seek(target uint64) {
	it.pos = sort.Search(len(it.pairs), func(i int) bool { return it.pairs[i].Key >= target })
}

// DBIterator walks the live pairs of a key range. It reads a consistent
// snapshot taken when it was created; later writes are not visible.
type DBIterator struct {
	merge  *MergeIterator
	closed bool
}

// NewIterator creates an iterator over lo <= key <= hi, positioned at the
// first live pair.
func (db *DB) NewIterator(lo, hi uint64) (*DBIterator, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrDBClosed
	}
	merge, err := db.mergeIteratorLocked(lo, hi)
	if err != nil {
		return nil, err
	}
	merge.SeekToFirst()
	return &DBIterator{merge: merge}, nil
}

// mergeIteratorLocked snapshots the memtable and every run overlapping
// [lo, hi] into one merge iterator, newest source first.
// Must be called with db.mu held.
func (db *DB) mergeIteratorLocked(lo, hi uint64) (*MergeIterator, error) {
	runs := db.catalog.newestFirst()
	sources := make([]Iterator, 0, len(runs)+1)
	sources = append(sources, newSliceIterator(db.memtable.Entries(lo, hi)))
	for _, name := range runs {
		r, err := db.files.Get(name)
		if err != nil {
			return nil, err
		}
		pairs, err := r.Entries(lo, hi)
		if err != nil {
			db.logger.Error("Failed to scan run", "error", err, "run", name)
			return nil, err
		}
		if len(pairs) > 0 {
			sources = append(sources, newSliceIterator(pairs))
		}
	}
	return NewMergeIterator(lo, hi, false, sources...), nil
}

func (it *DBIterator) Valid() bool {
	return !it.closed && it.merge.Valid()
}

func (it *DBIterator) SeekToFirst() {
	if !it.closed {
		it.merge.SeekToFirst()
	}
}

func (it *DBIterator) Seek(target uint64) {
	if !it.closed {
		it.merge.Seek(target)
	}
}

func (it *DBIterator) Next() {
	if it.Valid() {
		it.merge.Next()
	}
}

func (it *DBIterator) Key() uint64 {
	return it.merge.Key()
}

func (it *DBIterator) Value() uint64 {
	return it.merge.Value()
}

func (it *DBIterator) Error() error {
	return it.merge.Error()
}

// Close releases the snapshot. Safe to call multiple times.
func (it *DBIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.merge.Close()
}
