package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/page"
)

func TestLRUK_EvictsInfiniteDistanceFirstByOldestAccess(t *testing.T) {
	r := New(2)

	// Frame 1: one access (infinite distance), oldest.
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	// Frame 2: two accesses (finite distance).
	r.RecordAccess(2)
	r.RecordAccess(2)
	r.SetEvictable(2, true)

	// Frame 3: one access (infinite distance), newer than frame 1.
	r.RecordAccess(3)
	r.SetEvictable(3, true)

	require.Equal(t, 3, r.Size())

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, page.FrameID(1), victim, "earliest first-access among infinite-distance frames should be evicted first")
	require.Equal(t, 2, r.Size())
}

func TestLRUK_PrefersLargestFiniteKDistance(t *testing.T) {
	r := New(2)

	for i := 0; i < 2; i++ {
		r.RecordAccess(1)
	}
	for i := 0; i < 2; i++ {
		r.RecordAccess(2)
	}
	// Touch frame 1 a third time (ts 5). Its 2nd-most-recent access is still
	// ts 2, older than frame 2's ts 3, so frame 1 has the larger backward
	// k-distance (5-2=3 vs 5-3=2).
	r.RecordAccess(1)

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, page.FrameID(1), victim)
}

func TestLRUK_SetEvictableIsNoopWhenNotInUse(t *testing.T) {
	r := New(2)
	r.SetEvictable(5, true)
	require.Equal(t, 0, r.Size())
}

func TestLRUK_RemoveFailsWhenPinnedNonEvictable(t *testing.T) {
	r := New(2)
	r.RecordAccess(1)
	require.ErrorIs(t, r.Remove(1), ErrNotEvictable)
}

func TestLRUK_KeepsAccessedSetResidentUnderPressure(t *testing.T) {
	r := New(2)
	for _, f := range []page.FrameID{1, 2, 3} {
		r.RecordAccess(f)
		r.RecordAccess(f)
		r.SetEvictable(f, true)
	}
	// Re-access frames 1 and 2 repeatedly; frame 3 should always be chosen.
	for i := 0; i < 3; i++ {
		r.RecordAccess(1)
		r.RecordAccess(2)
	}
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, page.FrameID(3), victim)
}
