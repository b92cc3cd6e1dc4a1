package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/catalog"
	"github.com/corekv/corekv/internal/disk"
	"github.com/corekv/corekv/internal/lock"
	"github.com/corekv/corekv/internal/page"
	"github.com/corekv/corekv/internal/txn"
)

func newTestContext(t *testing.T) (*Context, *txn.Manager) {
	t.Helper()
	d, err := disk.NewManager(t.TempDir(), "corekv.db", page.Size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	cat, err := catalog.Open(d)
	require.NoError(t, err)

	txnMgr := txn.NewManager()
	locks := lock.NewManager(txnMgr)
	ctx := Begin(txnMgr, locks, cat, txn.ReadCommitted)
	return ctx, txnMgr
}

func TestContext_LockForWriteThenCommitReleasesLocks(t *testing.T) {
	ctx, _ := newTestContext(t)
	rid := page.RID{PageID: 1, Slot: 0}

	require.NoError(t, ctx.LockForWrite(7, rid))
	ctx.RecordWrite(7, rid, "insert")
	require.NoError(t, ctx.Commit())

	require.Equal(t, txn.Committed, ctx.Txn.State())
	_, held := ctx.Txn.RowLockMode(7, rid)
	require.False(t, held)
}

func TestContext_AbortUndoesWritesInReverseOrder(t *testing.T) {
	ctx, _ := newTestContext(t)
	rid0 := page.RID{PageID: 1, Slot: 0}
	rid1 := page.RID{PageID: 1, Slot: 1}

	require.NoError(t, ctx.LockForWrite(7, rid0))
	ctx.RecordWrite(7, rid0, "insert")
	require.NoError(t, ctx.LockForWrite(7, rid1))
	ctx.RecordWrite(7, rid1, "insert")

	var undone []page.RID
	err := ctx.Abort(func(rec txn.WriteRecord) error {
		undone = append(undone, rec.RID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []page.RID{rid1, rid0}, undone)
	require.Equal(t, txn.Aborted, ctx.Txn.State())
}

func TestContext_AbortPropagatesUndoError(t *testing.T) {
	ctx, _ := newTestContext(t)
	rid := page.RID{PageID: 1, Slot: 0}
	require.NoError(t, ctx.LockForWrite(7, rid))
	ctx.RecordWrite(7, rid, "insert")

	boom := errors.New("undo failed")
	err := ctx.Abort(func(txn.WriteRecord) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestContext_LockForReadRequiresTableThenRow(t *testing.T) {
	ctx, _ := newTestContext(t)
	rid := page.RID{PageID: 2, Slot: 0}
	require.NoError(t, ctx.LockForRead(3, rid))
	mode, held := ctx.Txn.TableLockMode(3)
	require.True(t, held)
	require.Equal(t, lock.IntentionShared, mode)
}
