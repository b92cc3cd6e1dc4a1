package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/bufferpool"
	"github.com/corekv/corekv/internal/disk"
	"github.com/corekv/corekv/internal/page"
)

func newTestTree(t *testing.T, leafMax, internalMax int) *Tree[int64] {
	t.Helper()
	dir := t.TempDir()
	d, err := disk.NewManager(dir, "idx", page.Size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	bp := bufferpool.New(d, 64, 2)
	return NewTree[int64](bp, CompareInt64, Int64Codec{}, leafMax, internalMax)
}

func rid(n int64) page.RID { return page.RID{PageID: page.ID(n), Slot: 0} }

func collect(t *testing.T, tr *Tree[int64]) []int64 {
	t.Helper()
	it, err := tr.Begin()
	require.NoError(t, err)
	var out []int64
	for it.Valid() {
		k, _ := it.Item()
		out = append(out, k)
		it.Next()
	}
	it.Close()
	return out
}

// TestTree_E2_BasicInsertSearch implements spec.md §8 scenario E2:
// leaf_max=5, internal_max=5, insert [1..5], BeginAt(3) yields [3,4,5].
func TestTree_E2_BasicInsertSearch(t *testing.T) {
	tr := newTestTree(t, 5, 5)

	for i := int64(1); i <= 5; i++ {
		ok, err := tr.Insert(i, rid(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(1); i <= 5; i++ {
		got, found, err := tr.GetValue(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, rid(i), got)
	}

	it, err := tr.BeginAt(3)
	require.NoError(t, err)
	var out []int64
	for it.Valid() {
		k, _ := it.Item()
		out = append(out, k)
		it.Next()
	}
	it.Close()
	require.Equal(t, []int64{3, 4, 5}, out)
}

// TestTree_E3_SplitsProduceSortedOrder implements spec.md §8 scenario E3:
// leaf_max=3, internal_max=3, insert [5,4,3,2,1] forces leaf and internal
// splits; the final in-order traversal must still be sorted.
func TestTree_E3_SplitsProduceSortedOrder(t *testing.T) {
	tr := newTestTree(t, 3, 3)

	for _, k := range []int64{5, 4, 3, 2, 1} {
		ok, err := tr.Insert(k, rid(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.Equal(t, []int64{1, 2, 3, 4, 5}, collect(t, tr))

	for i := int64(1); i <= 5; i++ {
		_, found, err := tr.GetValue(i)
		require.NoError(t, err)
		require.True(t, found)
	}
}

// TestTree_E4_RangeDeleteWithCoalesce implements spec.md §8 scenario E4:
// insert [1..5], remove 1, remove 5, remove 3, and confirm the remaining
// keys are intact and in order after the merges/redistributions settle.
func TestTree_E4_RangeDeleteWithCoalesce(t *testing.T) {
	tr := newTestTree(t, 3, 3)

	for i := int64(1); i <= 5; i++ {
		_, err := tr.Insert(i, rid(i))
		require.NoError(t, err)
	}

	require.NoError(t, tr.Remove(1))
	require.Equal(t, []int64{2, 3, 4, 5}, collect(t, tr))

	require.NoError(t, tr.Remove(5))
	require.Equal(t, []int64{2, 3, 4}, collect(t, tr))

	require.NoError(t, tr.Remove(3))
	require.Equal(t, []int64{2, 4}, collect(t, tr))

	for _, k := range []int64{1, 3, 5} {
		_, found, err := tr.GetValue(k)
		require.NoError(t, err)
		require.False(t, found)
	}
	for _, k := range []int64{2, 4} {
		_, found, err := tr.GetValue(k)
		require.NoError(t, err)
		require.True(t, found)
	}
}

func TestTree_Insert_RejectsDuplicateKey(t *testing.T) {
	tr := newTestTree(t, 5, 5)
	ok, err := tr.Insert(1, rid(1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.Insert(1, rid(99))
	require.NoError(t, err)
	require.False(t, ok)

	got, found, err := tr.GetValue(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(1), got)
}

func TestTree_EmptyTree_GetValueAndRemoveAreNoops(t *testing.T) {
	tr := newTestTree(t, 5, 5)
	require.True(t, tr.IsEmpty())

	_, found, err := tr.GetValue(1)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, tr.Remove(1))
}

func TestTree_ManyKeys_SortedOrderPreserved(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	const n = 200
	for i := int64(0); i < n; i++ {
		// Insert in a scrambled order so splits happen at various positions.
		k := (i * 37) % n
		_, err := tr.Insert(k, rid(k))
		require.NoError(t, err)
	}

	got := collect(t, tr)
	require.Len(t, got, n)
	for i := int64(0); i < n; i++ {
		require.Equal(t, i, got[i])
	}
}
