package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeNewerWins(t *testing.T) {
	a := []KVPair{{1, 10}, {4, 40}, {6, 60}}
	b := []KVPair{{2, 20}, {4, 30}, {5, 50}}

	got := Merge(a, b)
	require.Equal(t, []KVPair{{1, 10}, {2, 20}, {4, 40}, {5, 50}, {6, 60}}, got)
}

func TestMergeSuppressesTombstones(t *testing.T) {
	newer := []KVPair{{1, Tombstone}, {3, 30}, {7, Tombstone}}
	older := []KVPair{{1, 10}, {2, Tombstone}, {5, 50}}

	got := Merge(newer, older)
	require.Equal(t, []KVPair{{3, 30}, {5, 50}}, got)
}

func TestMergeKeepTombstones(t *testing.T) {
	newer := []KVPair{{1, Tombstone}, {3, 30}}
	older := []KVPair{{1, 10}, {2, 20}}

	got := MergeKeepTombstones(newer, older)
	require.Equal(t, []KVPair{{1, Tombstone}, {2, 20}, {3, 30}}, got)
}

func TestMergeEmptySides(t *testing.T) {
	s := []KVPair{{1, 1}, {2, 2}}
	require.Equal(t, s, Merge(nil, s))
	require.Equal(t, s, Merge(s, nil))
	require.Empty(t, Merge(nil, nil))
}

func TestEncodeDecode(t *testing.T) {
	buf := make([]byte, EntrySize)
	p := KVPair{Key: 0x0102030405060708, Value: Tombstone}
	p.Encode(buf)
	require.Equal(t, p, Decode(buf))
	require.True(t, Decode(buf).IsTombstone())

	NullPair.Encode(buf)
	require.True(t, Decode(buf).IsNull())
}

func TestDropTombstonesAndSorted(t *testing.T) {
	s := []KVPair{{1, 1}, {2, Tombstone}, {3, 3}}
	require.True(t, IsSorted(s))
	require.Equal(t, []KVPair{{1, 1}, {3, 3}}, DropTombstones(s))
	require.False(t, IsSorted([]KVPair{{2, 0}, {2, 1}}))
}
