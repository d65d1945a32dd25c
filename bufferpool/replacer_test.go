package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pid(i int) PageID {
	return PageID{Run: "0.sst", Index: i}
}

func TestClockReplacerSecondChance(t *testing.T) {
	c := NewClockReplacer()
	_, ok := c.Evict()
	require.False(t, ok)

	for i := 1; i <= 3; i++ {
		c.RecordAccess(pid(i))
	}
	require.Equal(t, 3, c.Len())

	// 1 is referenced, so the sweep clears it and takes 2.
	c.RecordAccess(pid(1))
	victim, ok := c.Evict()
	require.True(t, ok)
	require.Equal(t, pid(2), victim)

	victim, _ = c.Evict()
	require.Equal(t, pid(3), victim)
	victim, _ = c.Evict()
	require.Equal(t, pid(1), victim)

	_, ok = c.Evict()
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestClockReplacerInsertBehindHand(t *testing.T) {
	c := NewClockReplacer()
	c.RecordAccess(pid(1))
	c.RecordAccess(pid(2))
	c.RecordAccess(pid(1))
	c.RecordAccess(pid(2))

	// Both referenced: a full sweep clears them and returns to 1.
	victim, _ := c.Evict()
	require.Equal(t, pid(1), victim)

	// The hand now rests on 2; a new page goes behind it and is reached last.
	c.RecordAccess(pid(3))
	victim, _ = c.Evict()
	require.Equal(t, pid(2), victim)
	victim, _ = c.Evict()
	require.Equal(t, pid(3), victim)
}

func TestLRUReplacerOrder(t *testing.T) {
	r := NewLRUReplacer()
	for i := 1; i <= 3; i++ {
		r.RecordAccess(pid(i))
	}
	r.RecordAccess(pid(1))

	var order []PageID
	for {
		victim, ok := r.Evict()
		if !ok {
			break
		}
		order = append(order, victim)
	}
	require.Equal(t, []PageID{pid(2), pid(3), pid(1)}, order)
}

func TestReplacerRemove(t *testing.T) {
	for _, policy := range []Policy{Clock, LRU} {
		t.Run(policy.String(), func(t *testing.T) {
			r, err := NewReplacer(policy)
			require.NoError(t, err)

			for i := 0; i < 4; i++ {
				r.RecordAccess(pid(i))
			}
			require.True(t, r.Remove(pid(0)))
			require.False(t, r.Remove(pid(0)))
			require.True(t, r.Remove(pid(2)))
			require.Equal(t, 2, r.Len())

			seen := map[PageID]bool{}
			for {
				victim, ok := r.Evict()
				if !ok {
					break
				}
				seen[victim] = true
			}
			require.Equal(t, map[PageID]bool{pid(1): true, pid(3): true}, seen)

			// A fully drained replacer accepts new pages again.
			r.RecordAccess(pid(9))
			victim, ok := r.Evict()
			require.True(t, ok)
			require.Equal(t, pid(9), victim)
		})
	}
}

func TestNewReplacerUnsupported(t *testing.T) {
	_, err := NewReplacer(Policy(7))
	require.ErrorIs(t, err, ErrUnsupportedPolicy)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("LRU")
	require.NoError(t, err)
	require.Equal(t, LRU, p)

	p, err = ParsePolicy("clock")
	require.NoError(t, err)
	require.Equal(t, Clock, p)

	_, err = ParsePolicy("arc")
	require.ErrorIs(t, err, ErrUnsupportedPolicy)
}
