// Package corekv is the engine facade SPEC_FULL.md §6 adds on top of
// spec.md's collaborator-level interfaces: Open wires one disk manager,
// buffer pool, lock manager, transaction manager, and catalog together per
// data directory, and Close tears them down in the opposite order.
//
// Grounded on the teacher's internal/engine/db.go Database struct (a
// data-dir-rooted handle owning a storage manager and table metadata),
// generalized from the teacher's table/heap-oriented facade to the core
// subsystem this module actually implements.
package corekv

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/corekv/corekv/internal/bufferpool"
	"github.com/corekv/corekv/internal/catalog"
	"github.com/corekv/corekv/internal/config"
	"github.com/corekv/corekv/internal/disk"
	"github.com/corekv/corekv/internal/lock"
	"github.com/corekv/corekv/internal/page"
	"github.com/corekv/corekv/internal/txn"
)

const dbFileName = "corekv.db"

// Database owns every collaborator a single data directory needs: the disk
// manager (spec.md §6's "disk collaborator"), the buffer pool built on top
// of it, the catalog persisted through its header page, and the lock and
// transaction managers executors consume through internal/executor.Context.
type Database struct {
	cfg     *config.Config
	dataDir string

	Disk     *disk.Manager
	Pool     *bufferpool.Pool
	Catalog  *catalog.Catalog
	Locks    *lock.Manager
	Txns     *txn.Manager
	Detector *lock.Detector
}

// Open creates dataDir if necessary and wires a Database over it using cfg
// (config.Default() if cfg is nil). The deadlock detector is started
// immediately when cfg.EnableCycleDetection is set, per spec.md §4.6.4.
func Open(dataDir string, cfg *config.Config) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	d, err := disk.NewManager(dataDir, dbFileName, page.Size)
	if err != nil {
		return nil, fmt.Errorf("corekv: open disk manager: %w", err)
	}

	pool := bufferpool.New(d, cfg.PoolSize, cfg.LRUK)

	cat, err := catalog.Open(d)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("corekv: open catalog: %w", err)
	}

	txnMgr := txn.NewManager()
	locks := lock.NewManager(txnMgr)

	db := &Database{
		cfg:     cfg,
		dataDir: dataDir,
		Disk:    d,
		Pool:    pool,
		Catalog: cat,
		Locks:   locks,
		Txns:    txnMgr,
	}

	if cfg.EnableCycleDetection {
		interval := intervalOrDefault(cfg.CycleDetectionIntervalMs)
		db.Detector = lock.NewDetector(locks, txnMgr, interval)
		db.Detector.Start()
	}

	return db, nil
}

// DataFile returns the path of the primary segment file, mostly useful for
// diagnostics and tests.
func (db *Database) DataFile() string {
	return filepath.Join(db.dataDir, dbFileName)
}

// Close stops the deadlock detector, flushes every dirty page, persists the
// catalog, and closes the disk manager, in that order.
func (db *Database) Close() error {
	if db.Detector != nil {
		db.Detector.Stop()
	}
	if err := db.Pool.FlushAll(); err != nil {
		return fmt.Errorf("corekv: flush buffer pool: %w", err)
	}
	if err := db.Catalog.Flush(); err != nil {
		return fmt.Errorf("corekv: flush catalog: %w", err)
	}
	if err := db.Disk.Close(); err != nil {
		return fmt.Errorf("corekv: close disk manager: %w", err)
	}
	return nil
}

func intervalOrDefault(ms int) time.Duration {
	if ms <= 0 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}
