package lsmkv

import (
	"container/heap"

	"github.com/twlk9/lsmkv/keys"
)

// heapEntry is just a wrapper for an iterator so it can be put into a heap.
// priority is the position of the source: lower is newer.
type heapEntry struct {
	iter     Iterator
	priority int
}

// iteratorHeap is a min-heap of iterators ordered by their current key, so
// the one with the globally smallest key is always at the top. Equal keys
// put the newest source first.
type iteratorHeap []*heapEntry

func (h iteratorHeap) Len() int { return len(h) }

func (h iteratorHeap) Less(i, j int) bool {
	ki, kj := h[i].iter.Key(), h[j].iter.Key()
	if ki != kj {
		return ki < kj
	}
	return h[i].priority < h[j].priority
}

func (h iteratorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *iteratorHeap) Push(x any) { *h = append(*h, x.(*heapEntry)) }

func (h *iteratorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// MergeIterator presents several sorted sources as one sorted stream with a
// single version per key. Sources are added newest first; when several hold
// a key, the newest one's value is the one returned.
type MergeIterator struct {
	entries []heapEntry
	h       iteratorHeap

	lo, hi uint64

	// includeTombstones controls whether delete markers are returned.
	includeTombstones bool

	key, value uint64
	valid      bool
	err        error
}

// NewMergeIterator creates a merge iterator bounded to lo <= key <= hi.
func NewMergeIterator(lo, hi uint64, includeTombstones bool, sources ...Iterator) *MergeIterator {
	it := &MergeIterator{
		entries:           make([]heapEntry, len(sources)),
		h:                 make(iteratorHeap, 0, len(sources)),
		lo:                lo,
		hi:                hi,
		includeTombstones: includeTombstones,
	}
	for i, src := range sources {
		it.entries[i] = heapEntry{iter: src, priority: i}
	}
	return it
}

// rebuildHeap clears and rebuilds the heap with the current state of all
// source iterators.
func (it *MergeIterator) rebuildHeap() {
	it.h = it.h[:0]
	for i := range it.entries {
		if e := &it.entries[i]; e.iter.Valid() {
			it.h = append(it.h, e)
		}
	}
	heap.Init(&it.h)
}

// popMatching advances every source sitting on key.
func (it *MergeIterator) popMatching(key uint64) {
	for len(it.h) > 0 && it.h[0].iter.Key() == key {
		entry := it.h[0]
		entry.iter.Next()
		if err := entry.iter.Error(); err != nil && it.err == nil {
			it.err = err
		}
		if entry.iter.Valid() {
			heap.Fix(&it.h, 0)
		} else {
			heap.Pop(&it.h)
		}
	}
}

// findAndSetCurrent moves to the next key that should be exposed, skipping
// keys below the bounds and deleted keys unless tombstones are requested.
func (it *MergeIterator) findAndSetCurrent() {
	it.valid = false
	for len(it.h) > 0 && it.err == nil {
		top := it.h[0].iter
		key, value := top.Key(), top.Value()
		if key > it.hi {
			return
		}
		it.popMatching(key)
		if key < it.lo || (value == keys.Tombstone && !it.includeTombstones) {
			continue
		}
		it.key, it.value, it.valid = key, value, true
		return
	}
}

func (it *MergeIterator) SeekToFirst() {
	it.Seek(it.lo)
}

func (it *MergeIterator) Seek(target uint64) {
	it.err = nil
	target = max(target, it.lo)
	for _, e := range it.entries {
		e.iter.Seek(target)
	}
	it.rebuildHeap()
	it.findAndSetCurrent()
}

// Next advances the iterator to the next valid key.
func (it *MergeIterator) Next() {
	if it.valid {
		it.findAndSetCurrent()
	}
}

func (it *MergeIterator) Valid() bool {
	return it.err == nil && it.valid
}

func (it *MergeIterator) Key() uint64 {
	return it.key
}

func (it *MergeIterator) Value() uint64 {
	return it.value
}

func (it *MergeIterator) Error() error {
	return it.err
}

func (it *MergeIterator) Close() error {
	for _, e := range it.entries {
		if err := e.iter.Close(); err != nil && it.err == nil {
			// Keep closing the others, but return the first error.
			it.err = err
		}
	}
	it.valid = false
	return it.err
}

// collect drains the iterator from its current position.
func (it *MergeIterator) collect() ([]keys.KVPair, error) {
	var out []keys.KVPair
	for ; it.Valid(); it.Next() {
		out = append(out, keys.KVPair{Key: it.key, Value: it.value})
	}
	return out, it.Error()
}
