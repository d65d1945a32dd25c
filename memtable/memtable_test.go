package memtable

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twlk9/lsmkv/keys"
)

func TestMemTableBasicOperations(t *testing.T) {
	mt := New(100)

	_, err := mt.Get(42)
	require.ErrorIs(t, err, keys.ErrNotFound)

	mt.Put(7, 70)
	v, err := mt.Get(7)
	require.NoError(t, err)
	require.Equal(t, uint64(70), v)

	// Overwrite keeps a single entry.
	mt.Put(7, 71)
	v, err = mt.Get(7)
	require.NoError(t, err)
	require.Equal(t, uint64(71), v)
	require.Equal(t, 1, mt.Len())
}

func TestMemTableBudget(t *testing.T) {
	mt := New(5)
	for i := range 4 {
		require.True(t, mt.Put(1, uint64(i)), "put %d should fit", i)
	}
	require.False(t, mt.Put(1, 99))
	require.Equal(t, 0, mt.Remaining())
	require.Equal(t, 1, mt.Len())
}

func TestMemTableTombstones(t *testing.T) {
	mt := New(100)
	mt.Put(3, 30)
	mt.Put(3, keys.Tombstone)

	_, err := mt.Get(3)
	require.ErrorIs(t, err, keys.ErrNotFound)

	raw, ok := mt.Lookup(3)
	require.True(t, ok)
	require.Equal(t, keys.Tombstone, raw)

	require.Empty(t, mt.Scan(keys.MinKey, keys.MaxKey))
	require.Equal(t, []keys.KVPair{{Key: 3, Value: keys.Tombstone}}, mt.Entries(keys.MinKey, keys.MaxKey))
}

func TestMemTableScan(t *testing.T) {
	mt := New(100)
	for _, p := range []keys.KVPair{{Key: 7, Value: 8}, {Key: 2, Value: 3}, {Key: 5, Value: 6}, {Key: 4, Value: 5}} {
		mt.Put(p.Key, p.Value)
	}

	require.Equal(t, []keys.KVPair{{Key: 2, Value: 3}, {Key: 4, Value: 5}, {Key: 5, Value: 6}, {Key: 7, Value: 8}}, mt.Scan(keys.MinKey, keys.MaxKey))
	require.Equal(t, []keys.KVPair{{Key: 4, Value: 5}, {Key: 5, Value: 6}}, mt.Scan(3, 6))
	require.Equal(t, []keys.KVPair{{Key: 7, Value: 8}}, mt.Scan(6, 100))
	require.Empty(t, mt.Scan(8, 100))
	require.Empty(t, mt.Scan(6, 3))
}

// The lower bound can sit above the root; the right subtree must still be
// visited.
func TestMemTableScanLowerBoundAboveRoot(t *testing.T) {
	mt := New(100)
	for i := uint64(1); i <= 15; i++ {
		mt.Put(i, i*10)
	}
	got := mt.Scan(12, 20)
	require.Equal(t, []keys.KVPair{{Key: 12, Value: 120}, {Key: 13, Value: 130}, {Key: 14, Value: 140}, {Key: 15, Value: 150}}, got)
}

func TestMemTableStaysBalanced(t *testing.T) {
	mt := New(1 << 20)
	const n = 4096

	// Sequential inserts are the worst case for an unbalanced tree.
	for i := uint64(0); i < n; i++ {
		mt.Put(i, i)
	}
	// AVL height bound is about 1.44*log2(n).
	require.LessOrEqual(t, mt.Height(), 18)
	require.Equal(t, n, mt.Len())
}

func TestMemTableRandomAgainstMap(t *testing.T) {
	rnd := rand.New(rand.NewPCG(4, 8))
	mt := New(1 << 20)
	want := make(map[uint64]uint64)

	for range 5000 {
		k := rnd.Uint64N(1000)
		if rnd.IntN(5) == 0 {
			mt.Put(k, keys.Tombstone)
			delete(want, k)
			continue
		}
		v := rnd.Uint64N(1 << 40)
		mt.Put(k, v)
		want[k] = v
	}

	for k, v := range want {
		got, err := mt.Get(k)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	expected := make([]keys.KVPair, 0, len(want))
	for k, v := range want {
		expected = append(expected, keys.KVPair{Key: k, Value: v})
	}
	sort.Slice(expected, func(i, j int) bool { return expected[i].Key < expected[j].Key })
	require.Equal(t, expected, mt.Scan(keys.MinKey, keys.MaxKey))
}
