package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/disk"
	"github.com/corekv/corekv/internal/page"
)

func newTestDisk(t *testing.T) *disk.Manager {
	t.Helper()
	d, err := disk.NewManager(t.TempDir(), "corekv.db", page.Size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestCatalog_CreateLookup(t *testing.T) {
	c, err := Open(newTestDisk(t))
	require.NoError(t, err)

	oid, err := c.Create("users_pk", page.ID(3))
	require.NoError(t, err)
	require.Equal(t, uint32(1), oid)

	e, err := c.Lookup("users_pk")
	require.NoError(t, err)
	require.Equal(t, page.ID(3), e.Root)

	_, err = c.Create("users_pk", page.ID(9))
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = c.Lookup("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_FlushAndReopen(t *testing.T) {
	d := newTestDisk(t)
	c, err := Open(d)
	require.NoError(t, err)
	_, err = c.Create("idx", page.ID(7))
	require.NoError(t, err)
	require.NoError(t, c.SetRoot("idx", page.ID(42)))
	require.NoError(t, c.Flush())

	reopened, err := Open(d)
	require.NoError(t, err)
	e, err := reopened.Lookup("idx")
	require.NoError(t, err)
	require.Equal(t, page.ID(42), e.Root)
}
