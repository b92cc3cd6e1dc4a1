package hashtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable_InsertFindRemove(t *testing.T) {
	tbl := New[uint32, string](2, HashUint32)

	for i := uint32(0); i < 64; i++ {
		tbl.Insert(i, fmt.Sprintf("v%d", i))
	}

	for i := uint32(0); i < 64; i++ {
		v, ok := tbl.Find(i)
		require.True(t, ok, "key %d should be found", i)
		require.Equal(t, fmt.Sprintf("v%d", i), v)
	}

	for i := uint32(0); i < 64; i += 2 {
		require.True(t, tbl.Remove(i))
	}
	for i := uint32(0); i < 64; i++ {
		_, ok := tbl.Find(i)
		if i%2 == 0 {
			require.False(t, ok)
		} else {
			require.True(t, ok)
		}
	}
}

func TestTable_UpdateExistingKey(t *testing.T) {
	tbl := New[uint32, string](4, HashUint32)
	tbl.Insert(1, "a")
	tbl.Insert(1, "b")
	v, ok := tbl.Find(1)
	require.True(t, ok)
	require.Equal(t, "b", v)
}

// TestTable_DirectorySlotsShareLowBits verifies spec.md §8 property 4: for
// every pair of directory slots pointing at the same bucket, their low
// local-depth bits agree.
func TestTable_DirectorySlotsShareLowBits(t *testing.T) {
	tbl := New[uint32, int](2, HashUint32)
	for i := uint32(0); i < 200; i++ {
		tbl.Insert(i, int(i))
	}

	tbl.mu.RLock()
	defer tbl.mu.RUnlock()

	seen := map[*bucket[uint32, int]]uint32{}
	for i, b := range tbl.directory {
		mask := uint64(1)<<b.localDepth - 1
		low := uint64(i) & mask
		if prevLow, ok := seen[b]; ok {
			require.Equal(t, prevLow, uint32(low), "slots pointing at the same bucket must share low local-depth bits")
		} else {
			seen[b] = uint32(low)
		}
	}
}
