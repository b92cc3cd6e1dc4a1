// Package executor specifies the seam spec.md §1 leaves for a query
// executor: the `(LockManager, Catalog, TransactionContext)` contract is
// implemented in full; the planner, binder, and physical scan/join/insert
// operators that would sit on top of it are out of scope by spec.md's
// explicit non-goal.
//
// Grounded on the teacher's internal/sql/executor/executor.go Executor
// struct (a DB-and-raw-database pair driving plan execution), trimmed to
// the three collaborators spec.md §6 names and the locking discipline its
// §7 error-handling section requires of any caller: acquire before
// read/write, release (or unwind on abort) through the transaction.
package executor

import (
	"fmt"

	"github.com/corekv/corekv/internal/catalog"
	"github.com/corekv/corekv/internal/lock"
	"github.com/corekv/corekv/internal/page"
	"github.com/corekv/corekv/internal/txn"
)

// Context bundles the three collaborators spec.md §6's "Transaction API
// consumed by executors" names, so a stub executor can be written against
// a single argument instead of three.
type Context struct {
	Txn     *txn.Transaction
	Locks   *lock.Manager
	Catalog *catalog.Catalog
	txnMgr  *txn.Manager
}

// Begin starts a new transaction at the given isolation level and wraps it
// together with the lock manager and catalog it will use.
func Begin(txnMgr *txn.Manager, locks *lock.Manager, cat *catalog.Catalog, iso txn.IsolationLevel) *Context {
	return &Context{
		Txn:     txnMgr.Begin(iso),
		Locks:   locks,
		Catalog: cat,
		txnMgr:  txnMgr,
	}
}

// LockForRead acquires the table-level intention-shared lock and the
// row-level shared lock a plain read needs, in that order (spec.md §4.6's
// multi-granularity rule: a row lock requires its table's intention lock
// first).
func (c *Context) LockForRead(oid uint32, rid page.RID) error {
	if err := c.Locks.LockTable(c.Txn, lock.IntentionShared, oid); err != nil {
		return err
	}
	return c.Locks.LockRow(c.Txn, lock.Shared, oid, rid)
}

// LockForWrite acquires the table-level intention-exclusive lock and the
// row-level exclusive lock a write needs.
func (c *Context) LockForWrite(oid uint32, rid page.RID) error {
	if err := c.Locks.LockTable(c.Txn, lock.IntentionExclusive, oid); err != nil {
		return err
	}
	return c.Locks.LockRow(c.Txn, lock.Exclusive, oid, rid)
}

// LockTableForScan acquires a whole-table intention-shared lock for a
// sequential scan, without pinning any particular row.
func (c *Context) LockTableForScan(oid uint32) error {
	return c.Locks.LockTable(c.Txn, lock.IntentionShared, oid)
}

// RecordWrite appends to the transaction's undo log, for an executor's
// abort path to replay against the heap/index it touched.
func (c *Context) RecordWrite(oid uint32, rid page.RID, kind string) {
	c.Txn.LogWrite(txn.WriteRecord{TableOID: oid, RID: rid, Kind: kind})
}

// Commit releases every lock the transaction still holds and marks it
// committed. Row locks are released before their owning table lock, since
// UnlockTable refuses to run while any row lock on that table remains
// (spec.md §4.6.3's UnlockedBeforeRows rule).
func (c *Context) Commit() error {
	if err := c.releaseAll(); err != nil {
		return err
	}
	c.txnMgr.Commit(c.Txn)
	return nil
}

// Abort unwinds the transaction's write set in reverse order via undo, the
// caller-supplied function for each write record (spec.md §7: "the caller
// is expected to unwind and invoke abort(ctx)"), then releases every lock
// and marks the transaction aborted.
func (c *Context) Abort(undo func(txn.WriteRecord) error) error {
	writes := c.Txn.WriteSet()
	for i := len(writes) - 1; i >= 0; i-- {
		if undo != nil {
			if err := undo(writes[i]); err != nil {
				return fmt.Errorf("executor: undo failed: %w", err)
			}
		}
	}
	_ = c.releaseAll()
	c.txnMgr.Abort(c.Txn)
	return nil
}

func (c *Context) releaseAll() error {
	oids := make(map[uint32]struct{})
	for oid := range c.collectTableLocks() {
		oids[oid] = struct{}{}
	}
	// Row locks first.
	for key := range c.collectRowLocks() {
		if err := c.Locks.UnlockRow(c.Txn, key.oid, key.rid); err != nil {
			return err
		}
	}
	for oid := range oids {
		if err := c.Locks.UnlockTable(c.Txn, oid); err != nil {
			return err
		}
	}
	return nil
}

type rowLockKey struct {
	oid uint32
	rid page.RID
}

// collectTableLocks and collectRowLocks introspect the transaction's own
// bookkeeping rather than the lock manager's, since the manager exposes no
// "list this transaction's locks" call (spec.md §6 only specifies
// per-object inspection predicates).
func (c *Context) collectTableLocks() map[uint32]struct{} {
	return c.Txn.TableLocks()
}

func (c *Context) collectRowLocks() map[rowLockKey]struct{} {
	out := make(map[rowLockKey]struct{})
	for _, rk := range c.Txn.RowLocks() {
		out[rowLockKey{oid: rk.TableOID, rid: rk.RID}] = struct{}{}
	}
	return out
}
