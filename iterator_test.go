package lsmkv

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twlk9/lsmkv/keys"
)

func pairs(kv ...uint64) []keys.KVPair {
	out := make([]keys.KVPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, keys.KVPair{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestMergeIteratorNewestWins(t *testing.T) {
	newest := newSliceIterator(pairs(1, 10, 4, 40, 6, 60))
	older := newSliceIterator(pairs(2, 20, 4, 30, 5, 50))
	oldest := newSliceIterator(pairs(4, 1, 6, 1, 7, 70))

	it := NewMergeIterator(keys.MinKey, keys.MaxKey, false, newest, older, oldest)
	it.SeekToFirst()
	got, err := it.collect()
	require.NoError(t, err)
	require.Equal(t, pairs(1, 10, 2, 20, 4, 40, 5, 50, 6, 60, 7, 70), got)
	require.NoError(t, it.Close())
}

func TestMergeIteratorTombstones(t *testing.T) {
	sources := func() []Iterator {
		return []Iterator{
			newSliceIterator(pairs(2, keys.Tombstone, 3, 33)),
			newSliceIterator(pairs(1, 10, 2, 20, 3, 30)),
		}
	}

	it := NewMergeIterator(keys.MinKey, keys.MaxKey, false, sources()...)
	it.SeekToFirst()
	got, err := it.collect()
	require.NoError(t, err)
	require.Equal(t, pairs(1, 10, 3, 33), got)

	it = NewMergeIterator(keys.MinKey, keys.MaxKey, true, sources()...)
	it.SeekToFirst()
	got, err = it.collect()
	require.NoError(t, err)
	require.Equal(t, pairs(1, 10, 2, keys.Tombstone, 3, 33), got)
}

func TestMergeIteratorBoundsAndSeek(t *testing.T) {
	it := NewMergeIterator(3, 8, false,
		newSliceIterator(pairs(1, 1, 3, 3, 5, 5, 9, 9)),
		newSliceIterator(pairs(2, 2, 4, 4, 8, 8, 10, 10)),
	)

	it.SeekToFirst()
	got, err := it.collect()
	require.NoError(t, err)
	require.Equal(t, pairs(3, 3, 4, 4, 5, 5, 8, 8), got)

	it.Seek(5)
	require.True(t, it.Valid())
	require.Equal(t, uint64(5), it.Key())
	it.Next()
	require.Equal(t, uint64(8), it.Key())
	it.Next()
	require.False(t, it.Valid())

	// Seeking below lo clamps to lo.
	it.Seek(0)
	require.Equal(t, uint64(3), it.Key())
}

func TestMergeIteratorEmpty(t *testing.T) {
	it := NewMergeIterator(keys.MinKey, keys.MaxKey, false)
	it.SeekToFirst()
	require.False(t, it.Valid())

	it = NewMergeIterator(keys.MinKey, keys.MaxKey, false, newSliceIterator(nil), newSliceIterator(nil))
	it.SeekToFirst()
	require.False(t, it.Valid())
	it.Next()
	require.False(t, it.Valid())
}

func TestDBIterator(t *testing.T) {
	db := openTestDB(t, testOptions(t, 4))

	for k := uint64(0); k < 30; k++ {
		require.NoError(t, db.Put(k, k*2))
	}
	require.NoError(t, db.Delete(10))
	require.NoError(t, db.Put(11, 1111))

	iter, err := db.NewIterator(5, 15)
	require.NoError(t, err)
	defer iter.Close()

	// Writes after creation are not visible.
	require.NoError(t, db.Put(12, 1212))

	var got []keys.KVPair
	for ; iter.Valid(); iter.Next() {
		got = append(got, keys.KVPair{Key: iter.Key(), Value: iter.Value()})
	}
	require.NoError(t, iter.Error())

	var want []keys.KVPair
	for k := uint64(5); k <= 15; k++ {
		switch k {
		case 10:
		case 11:
			want = append(want, keys.KVPair{Key: k, Value: 1111})
		default:
			want = append(want, keys.KVPair{Key: k, Value: k * 2})
		}
	}
	require.Equal(t, want, got)

	iter.Seek(14)
	require.True(t, iter.Valid())
	require.Equal(t, uint64(14), iter.Key())

	iter.SeekToFirst()
	require.Equal(t, uint64(5), iter.Key())

	require.NoError(t, iter.Close())
	require.False(t, iter.Valid())
	require.NoError(t, iter.Close())
}

func TestDBIteratorEmptyAndClosed(t *testing.T) {
	db, err := Open(testOptions(t, 4))
	require.NoError(t, err)

	iter, err := db.NewIterator(keys.MinKey, keys.MaxKey)
	require.NoError(t, err)
	require.False(t, iter.Valid())
	iter.Seek(100)
	require.False(t, iter.Valid())
	require.NoError(t, iter.Close())

	require.NoError(t, db.Close())
	_, err = db.NewIterator(0, 1)
	require.ErrorIs(t, err, ErrDBClosed)
}
