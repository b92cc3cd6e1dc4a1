package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/disk"
	"github.com/corekv/corekv/internal/page"
)

func newTestPool(t *testing.T, poolSize, k int) *Pool {
	t.Helper()
	dir := t.TempDir()
	d, err := disk.NewManager(dir, "testtable", page.Size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return New(d, poolSize, k)
}

func TestPool_NewPage_PinsAndMaps(t *testing.T) {
	p := newTestPool(t, 4, 2)

	pg, err := p.NewPage()
	require.NoError(t, err)
	require.NotNil(t, pg)
	require.Equal(t, int32(1), pg.PinCount())

	mapped, free := p.Stats()
	require.Equal(t, 1, mapped)
	require.Equal(t, 3, free)
}

func TestPool_FetchPage_SameFrameOnSecondFetch(t *testing.T) {
	p := newTestPool(t, 4, 2)

	pg1, err := p.NewPage()
	require.NoError(t, err)
	id := pg1.ID()
	require.NoError(t, p.UnpinPage(id, false))

	pg2, err := p.FetchPage(id)
	require.NoError(t, err)
	require.Same(t, pg1, pg2)
	require.Equal(t, int32(1), pg2.PinCount())
}

// TestPool_E1_InsertFindDeleteScenario implements spec.md §8 scenario E1
// with pool_size=1, k=2.
func TestPool_E1_InsertFindDeleteScenario(t *testing.T) {
	p := newTestPool(t, 1, 2)

	p0, err := p.NewPage()
	require.NoError(t, err)
	id0 := p0.ID()
	copy(p0.Data(), []byte("page-zero"))
	require.NoError(t, p.UnpinPage(id0, true))

	p1, err := p.NewPage()
	require.NoError(t, err)
	id1 := p1.ID()
	copy(p1.Data(), []byte("page-one"))
	require.NoError(t, p.UnpinPage(id1, true))

	// Fetching p0 again must evict p1 (the only resident frame), flushing
	// it to disk first since it was marked dirty.
	fetched, err := p.FetchPage(id0)
	require.NoError(t, err)
	require.Equal(t, id0, fetched.ID())
	require.NoError(t, p.UnpinPage(id0, false))

	require.NoError(t, p.FlushAll())

	require.NoError(t, p.DeletePage(id0))
}

func TestPool_UnpinPage_ErrorsWhenNotPinned(t *testing.T) {
	p := newTestPool(t, 2, 2)
	pg, err := p.NewPage()
	require.NoError(t, err)
	require.NoError(t, p.UnpinPage(pg.ID(), false))
	require.ErrorIs(t, p.UnpinPage(pg.ID(), false), ErrNotPinned)
}

func TestPool_DeletePage_FailsWhenPinned(t *testing.T) {
	p := newTestPool(t, 2, 2)
	pg, err := p.NewPage()
	require.NoError(t, err)
	require.ErrorIs(t, p.DeletePage(pg.ID()), ErrPinned)
}

func TestPool_Exhausted_WhenAllFramesPinned(t *testing.T) {
	p := newTestPool(t, 1, 2)
	_, err := p.NewPage()
	require.NoError(t, err)
	_, err = p.NewPage()
	require.ErrorIs(t, err, ErrExhausted)
}
