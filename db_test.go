package corekv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/config"
	"github.com/corekv/corekv/internal/executor"
	"github.com/corekv/corekv/internal/page"
	"github.com/corekv/corekv/internal/txn"
)

func TestOpen_WiresCollaboratorsAndCloses(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.PoolSize = 8

	db, err := Open(dir, cfg)
	require.NoError(t, err)

	pg, err := db.Pool.NewPage()
	require.NoError(t, err)
	require.NoError(t, db.Pool.UnpinPage(pg.ID(), true))

	require.NoError(t, db.Close())
}

func TestOpen_ExecutorRoundTripThroughEngine(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.EnableCycleDetection = false

	db, err := Open(dir, cfg)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	oid, err := db.Catalog.Create("accounts", page.Invalid)
	require.NoError(t, err)

	ctx := executor.Begin(db.Txns, db.Locks, db.Catalog, txn.ReadCommitted)
	rid := page.RID{PageID: 1, Slot: 0}
	require.NoError(t, ctx.LockForWrite(oid, rid))
	ctx.RecordWrite(oid, rid, "insert")
	require.NoError(t, ctx.Commit())
	require.Equal(t, txn.Committed, ctx.Txn.State())
}
