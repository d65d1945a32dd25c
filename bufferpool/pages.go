package bufferpool

import (
	"sync"

	"github.com/twlk9/lsmkv/keys"
)

// PageEntries is the number of records a cached page holds.
const PageEntries = 4096 / keys.EntrySize

// pageRecycler keeps page backing arrays alive between evictions so a
// steady-state pool does not allocate.
type pageRecycler struct {
	pages sync.Pool
}

func newPageRecycler() *pageRecycler {
	return &pageRecycler{
		pages: sync.Pool{
			New: func() any {
				return make([]keys.KVPair, 0, PageEntries)
			},
		},
	}
}

func (r *pageRecycler) get() []keys.KVPair {
	return r.pages.Get().([]keys.KVPair)[:0]
}

// put takes back a page. Odd-sized pages are left for the GC.
func (r *pageRecycler) put(page []keys.KVPair) {
	if cap(page) != PageEntries {
		return
	}
	r.pages.Put(page[:0])
}

// fill copies data into page, growing it when data does not fit.
func fill(page, data []keys.KVPair) []keys.KVPair {
	if cap(page) < len(data) {
		page = make([]keys.KVPair, len(data))
	}
	page = page[:len(data)]
	copy(page, data)
	return page
}
