package directio

import "sync"

const (
	smallBufferSize = 4096
	largeBufferSize = 32768
)

// BufferPool hands out block-aligned byte slices in two size classes.
type BufferPool struct {
	small sync.Pool // <= smallBufferSize
	large sync.Pool // <= largeBufferSize
}

// NewBufferPool creates a pool with the predefined size classes.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small: sync.Pool{
			New: func() any {
				return AlignedBlock(smallBufferSize)[:0]
			},
		},
		large: sync.Pool{
			New: func() any {
				return AlignedBlock(largeBufferSize)[:0]
			},
		},
	}
}

// Get returns an aligned slice of length size. Oversized requests are
// allocated directly and never come back to the pool.
func (p *BufferPool) Get(size int) []byte {
	var buf []byte
	switch {
	case size <= smallBufferSize:
		buf = p.small.Get().([]byte)
	case size <= largeBufferSize:
		buf = p.large.Get().([]byte)
	default:
		return AlignedBlock(size)
	}
	return buf[:size]
}

// Put returns buf to the pool matching its capacity. Anything else is left
// for the GC.
func (p *BufferPool) Put(buf []byte) {
	buf = buf[:0]
	if !IsAligned(buf) {
		return
	}
	switch cap(buf) {
	case smallBufferSize:
		p.small.Put(buf)
	case largeBufferSize:
		p.large.Put(buf)
	}
}

var globalBufferPool = NewBufferPool()

// GetBuffer returns an aligned slice from the global pool.
func GetBuffer(size int) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns an aligned slice to the global pool.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
