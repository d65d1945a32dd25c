// Package sstable reads and writes sorted runs: immutable files of
// fixed-size uint64 records split into pages behind a sparse index.
package sstable

import (
	"github.com/twlk9/lsmkv/keys"
)

// Read decodes every record of the run at path, tombstones included.
func Read(path string, opts ReaderOpts) ([]keys.KVPair, error) {
	r, err := OpenReader(path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}

// Get looks key up in the run at path, reading pages through cache when it
// is not nil.
func Get(path string, key uint64, cache PageCache) (uint64, error) {
	r, err := OpenReader(path, ReaderOpts{})
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.Get(key, cache)
}

// Scan returns the live records of the run at path in [lo, hi].
func Scan(path string, lo, hi uint64) ([]keys.KVPair, error) {
	r, err := OpenReader(path, ReaderOpts{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Scan(lo, hi)
}
