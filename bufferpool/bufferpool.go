// Package bufferpool caches decoded run pages in an extendible hash table.
//
// The directory starts at InitialCapacity slots and doubles, up to
// MaxCapacity, once the page count crosses ExtendThreshold of the current
// size. A doubling only aliases the new slots onto the existing buckets;
// buckets are split lazily by rehash the next time a chain is seen on a
// shared bucket. Once the directory is at its ceiling and full, a
// Replacer picks the page to give up.
package bufferpool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/twlk9/lsmkv/keys"
)

// Directory sizing used when Options leaves a field zero.
const (
	DefaultInitialCapacity = 32
	DefaultMaxCapacity     = 64
	DefaultExtendThreshold = 0.9
)

var (
	ErrInvalidCapacity  = errors.New("capacity must be a positive power of two")
	ErrInvalidThreshold = errors.New("extend threshold must be in (0, 1]")
)

// Options configures a BufferPool. Zero values take the defaults.
type Options struct {
	InitialCapacity int
	MaxCapacity     int
	ExtendThreshold float64
	Policy          Policy
	Logger          *slog.Logger
	Metrics         *Metrics
}

func (o *Options) setDefaults() {
	if o.InitialCapacity == 0 {
		o.InitialCapacity = DefaultInitialCapacity
	}
	if o.MaxCapacity == 0 {
		o.MaxCapacity = max(DefaultMaxCapacity, o.InitialCapacity)
	}
	if o.ExtendThreshold == 0 {
		o.ExtendThreshold = DefaultExtendThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
}

// Validate checks the capacities and threshold.
func (o *Options) Validate() error {
	if !isPowerOfTwo(o.InitialCapacity) || !isPowerOfTwo(o.MaxCapacity) {
		return fmt.Errorf("%w: initial %d, max %d", ErrInvalidCapacity, o.InitialCapacity, o.MaxCapacity)
	}
	if o.InitialCapacity > o.MaxCapacity {
		return fmt.Errorf("%w: initial %d exceeds max %d", ErrInvalidCapacity, o.InitialCapacity, o.MaxCapacity)
	}
	if o.ExtendThreshold <= 0 || o.ExtendThreshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, o.ExtendThreshold)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

type entry struct {
	id   PageID
	page []keys.KVPair
}

// bucket is a chain of cached pages. refCount is the number of directory
// slots pointing at it.
type bucket struct {
	entries  []*entry
	refCount int
}

func newBucket() *bucket {
	return &bucket{refCount: 1}
}

func (b *bucket) find(id PageID) *entry {
	for _, e := range b.entries {
		if e.id == id {
			return e
		}
	}
	return nil
}

func (b *bucket) remove(id PageID) *entry {
	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return e
		}
	}
	return nil
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	Extends      uint64
	Rehashes     uint64
	NumPages     int
	CurrCapacity int
	MaxCapacity  int
	Policy       Policy
}

// BufferPool is safe for concurrent use. Pages returned by Get belong to the
// pool and stay valid only until the next call that may evict.
type BufferPool struct {
	mu sync.Mutex

	directory []*bucket
	initial   int
	curr      int
	max       int
	threshold float64
	numPages  int

	policy   Policy
	replacer Replacer
	pages    *pageRecycler
	digest   *xxhash.Digest

	logger  *slog.Logger
	metrics *Metrics

	hits, misses, evictions, extends, rehashes uint64
}

// New creates an empty pool.
func New(opts Options) (*BufferPool, error) {
	opts.setDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	replacer, err := NewReplacer(opts.Policy)
	if err != nil {
		return nil, err
	}
	p := &BufferPool{
		initial:   opts.InitialCapacity,
		curr:      opts.InitialCapacity,
		max:       opts.MaxCapacity,
		threshold: opts.ExtendThreshold,
		policy:    opts.Policy,
		replacer:  replacer,
		pages:     newPageRecycler(),
		digest:    xxhash.New(),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	p.directory = freshDirectory(p.curr)
	p.metrics.size(0, p.curr)
	return p, nil
}

func freshDirectory(n int) []*bucket {
	dir := make([]*bucket, n)
	for i := range dir {
		dir[i] = newBucket()
	}
	return dir
}

// hash maps a page to a directory slot under the current capacity.
func (p *BufferPool) hash(id PageID) int {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(id.Index))
	p.digest.Reset()
	p.digest.WriteString(id.Run)
	p.digest.Write(idx[:])
	return int(p.digest.Sum64() & uint64(p.curr-1))
}

// Slot returns the directory slot a page hashes to.
func (p *BufferPool) Slot(run string, index int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hash(PageID{Run: run, Index: index})
}

// Get returns the cached page, if any. A hit counts as an access for the
// replacer.
func (p *BufferPool) Get(run string, index int) ([]keys.KVPair, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := PageID{Run: run, Index: index}
	slot := p.hash(id)
	e := p.directory[slot].find(id)
	if e != nil {
		p.hits++
		p.metrics.hit()
		p.replacer.RecordAccess(id)
	} else {
		p.misses++
		p.metrics.miss()
	}
	p.maybeRehash(slot)

	if e == nil {
		return nil, false
	}
	return e.page, true
}

// Put caches a copy of data as page index of run.
func (p *BufferPool) Put(run string, index int, data []keys.KVPair) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := PageID{Run: run, Index: index}
	slot := p.hash(id)
	b := p.directory[slot]

	if e := b.find(id); e != nil {
		e.page = fill(e.page, data)
		p.replacer.RecordAccess(id)
		return
	}

	var page []keys.KVPair
	if p.curr == p.max && p.numPages >= p.curr {
		page = p.evictOne()
	} else {
		p.numPages++
	}
	if page == nil {
		page = p.pages.get()
	}

	b.entries = append(b.entries, &entry{id: id, page: fill(page, data)})
	p.replacer.RecordAccess(id)

	if p.curr < p.max && float64(p.numPages) >= float64(p.curr)*p.threshold {
		p.extend()
	}
	p.maybeRehash(slot)
	p.metrics.size(p.numPages, p.curr)
}

// evictOne removes the replacer's victim from the bucket that holds it and
// hands back its page for reuse. When nothing can be evicted the page count
// grows instead.
func (p *BufferPool) evictOne() []keys.KVPair {
	victim, ok := p.replacer.Evict()
	if !ok {
		p.numPages++
		return nil
	}
	e := p.directory[p.hash(victim)].remove(victim)
	if e == nil {
		p.logger.Warn("evicted page missing from directory", "page", victim.String())
		p.numPages++
		return nil
	}
	p.evictions++
	p.metrics.evicted(1)
	return e.page
}

func (p *BufferPool) maybeRehash(slot int) {
	b := p.directory[slot]
	if b.refCount > 1 && len(b.entries) >= 2 {
		p.rehash(slot)
	}
}

// extend doubles the directory. New slots alias the bucket of their lower
// half counterpart.
func (p *BufferPool) extend() {
	old := p.curr
	p.curr <<= 1
	for i := old; i < p.curr; i++ {
		b := p.directory[i-old]
		b.refCount++
		p.directory = append(p.directory, b)
	}
	p.extends++
	p.metrics.extended()
	p.logger.Debug("buffer pool directory extended", "from", old, "to", p.curr, "pages", p.numPages)
}

// rehash gives every other slot sharing slot's bucket a bucket of its own
// and redistributes the chain under the current hash.
func (p *BufferPool) rehash(slot int) {
	orig := p.directory[slot]
	for i, b := range p.directory {
		if b == orig && i != slot {
			p.directory[i] = newBucket()
		}
	}
	orig.refCount = 1

	chain := orig.entries
	orig.entries = nil
	for _, e := range chain {
		b := p.directory[p.hash(e.id)]
		b.entries = append(b.entries, e)
	}
	p.rehashes++
	p.metrics.rehashed()
}

// Resize changes the pool ceiling. Growing only raises MaxCapacity. Shrinking
// below the current directory size drops the pages that do not fit and
// rebuilds the directory at the new size.
func (p *BufferPool) Resize(capacity int) error {
	if !isPowerOfTwo(capacity) {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if capacity >= p.curr {
		p.max = capacity
		p.logger.Info("buffer pool ceiling changed", "max", capacity)
		return nil
	}

	// Buckets still reachable from the slots that remain.
	kept := make(map[*bucket]bool, capacity)
	var survivors []*entry
	for _, b := range p.directory[:capacity] {
		if kept[b] {
			continue
		}
		kept[b] = true
		survivors = append(survivors, b.entries...)
	}

	dropped := 0
	seen := make(map[*bucket]bool)
	for _, b := range p.directory[capacity:] {
		if kept[b] || seen[b] {
			continue
		}
		seen[b] = true
		for _, e := range b.entries {
			p.replacer.Remove(e.id)
			p.pages.put(e.page)
			dropped++
		}
	}

	if len(survivors) > capacity {
		idx := make(map[PageID]int, len(survivors))
		for i, e := range survivors {
			idx[e.id] = i
		}
		for excess := len(survivors) - capacity; excess > 0; {
			victim, ok := p.replacer.Evict()
			if !ok {
				break
			}
			i, ok := idx[victim]
			if !ok || survivors[i] == nil {
				continue
			}
			p.pages.put(survivors[i].page)
			survivors[i] = nil
			dropped++
			excess--
		}
	}

	p.curr = capacity
	p.max = capacity
	p.initial = min(p.initial, capacity)
	p.directory = freshDirectory(capacity)
	p.numPages = 0
	for _, e := range survivors {
		if e == nil {
			continue
		}
		b := p.directory[p.hash(e.id)]
		b.entries = append(b.entries, e)
		p.numPages++
	}

	p.evictions += uint64(dropped)
	p.metrics.evicted(dropped)
	p.metrics.size(p.numPages, p.curr)
	p.logger.Info("buffer pool shrunk", "capacity", capacity, "dropped", dropped, "pages", p.numPages)
	return nil
}

// Drop forgets every cached page of run and returns how many were removed.
func (p *BufferPool) Drop(run string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := 0
	p.forEachBucket(func(b *bucket) {
		kept := b.entries[:0]
		for _, e := range b.entries {
			if e.id.Run != run {
				kept = append(kept, e)
				continue
			}
			p.replacer.Remove(e.id)
			p.pages.put(e.page)
			dropped++
		}
		clear(b.entries[len(kept):])
		b.entries = kept
	})
	p.numPages -= dropped
	p.metrics.size(p.numPages, p.curr)
	return dropped
}

// forEachBucket visits each distinct bucket once.
func (p *BufferPool) forEachBucket(fn func(*bucket)) {
	seen := make(map[*bucket]bool, len(p.directory))
	for _, b := range p.directory {
		if seen[b] {
			continue
		}
		seen[b] = true
		fn(b)
	}
}

// Close releases every cached page exactly once and empties the pool. It
// returns the number of pages released.
func (p *BufferPool) Close() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	released := 0
	p.forEachBucket(func(b *bucket) {
		for _, e := range b.entries {
			p.pages.put(e.page)
			released++
		}
		b.entries = nil
	})

	p.curr = p.initial
	p.directory = freshDirectory(p.curr)
	p.numPages = 0
	p.replacer, _ = NewReplacer(p.policy)
	p.metrics.size(0, p.curr)
	return released
}

// NumPages returns the number of pages currently cached.
func (p *BufferPool) NumPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPages
}

// CurrCapacity returns the current directory size.
func (p *BufferPool) CurrCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curr
}

// MaxCapacity returns the ceiling the directory may grow to.
func (p *BufferPool) MaxCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// BucketRefCount returns how many slots share the bucket at slot.
func (p *BufferPool) BucketRefCount(slot int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.directory[slot].refCount
}

// BucketLen returns the chain length of the bucket at slot.
func (p *BufferPool) BucketLen(slot int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.directory[slot].entries)
}

// Stats returns a snapshot of the pool counters and sizing.
func (p *BufferPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Hits:         p.hits,
		Misses:       p.misses,
		Evictions:    p.evictions,
		Extends:      p.extends,
		Rehashes:     p.rehashes,
		NumPages:     p.numPages,
		CurrCapacity: p.curr,
		MaxCapacity:  p.max,
		Policy:       p.policy,
	}
}
