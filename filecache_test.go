package lsmkv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twlk9/lsmkv/keys"
	"github.com/twlk9/lsmkv/sstable"
)

func writeTestRuns(t *testing.T, dir string, n int) {
	t.Helper()
	for i := range n {
		records := []keys.KVPair{{Key: uint64(i), Value: uint64(i * 10)}}
		require.NoError(t, sstable.Write(filepath.Join(dir, runName(i)), records, sstable.WriterOpts{}))
	}
}

func TestFileCacheLRU(t *testing.T) {
	dir := t.TempDir()
	writeTestRuns(t, dir, 3)

	fc := NewFileCache(dir, 2, sstable.ReaderOpts{}, nil)
	defer fc.Close()

	r0, err := fc.Get("0.sst")
	require.NoError(t, err)
	again, err := fc.Get("0.sst")
	require.NoError(t, err)
	require.Same(t, r0, again)

	_, err = fc.Get("1.sst")
	require.NoError(t, err)
	// Touch 0 so 1 becomes the eviction candidate.
	_, err = fc.Get("0.sst")
	require.NoError(t, err)
	_, err = fc.Get("2.sst")
	require.NoError(t, err)
	require.Equal(t, 2, fc.Len())

	r0b, err := fc.Get("0.sst")
	require.NoError(t, err)
	require.Same(t, r0, r0b)

	v, err := r0b.Get(0, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)
}

func TestFileCacheEvictClosesReader(t *testing.T) {
	dir := t.TempDir()
	writeTestRuns(t, dir, 1)

	fc := NewFileCache(dir, 4, sstable.ReaderOpts{}, nil)
	r, err := fc.Get("0.sst")
	require.NoError(t, err)

	fc.Evict("0.sst")
	require.Zero(t, fc.Len())
	_, err = r.Get(0, nil)
	require.ErrorIs(t, err, ErrIOError)

	fresh, err := fc.Get("0.sst")
	require.NoError(t, err)
	require.NotSame(t, r, fresh)

	require.NoError(t, fc.Close())
	require.NoError(t, fc.Close())
	_, err = fc.Get("0.sst")
	require.ErrorIs(t, err, ErrDBClosed)
}

func TestFileCacheMissingRun(t *testing.T) {
	fc := NewFileCache(t.TempDir(), 4, sstable.ReaderOpts{}, nil)
	defer fc.Close()

	_, err := fc.Get("5.sst")
	require.ErrorIs(t, err, ErrIOError)
	require.Zero(t, fc.Len())
}
