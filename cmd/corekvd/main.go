// Command corekvd is a small demo binary that loads configuration, opens a
// database directory, and exercises the transaction API end to end. There
// is no SQL wire protocol here — planner, binder, and physical executors
// are out of scope (spec.md §1) — so this entrypoint drives
// internal/executor.Context directly against one synthetic "demo" table and
// one row id, logging what it did.
//
// Grounded on the teacher's cmd/server/main.go flag/config/signal-handling
// pattern, trimmed of its net.Listen/Accept loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/corekv/corekv"
	"github.com/corekv/corekv/internal/config"
	"github.com/corekv/corekv/internal/executor"
	"github.com/corekv/corekv/internal/page"
	"github.com/corekv/corekv/internal/txn"
)

func main() {
	var cfgPath string
	var dataDir string
	flag.StringVar(&cfgPath, "config", "", "path to corekv YAML config (optional)")
	flag.StringVar(&dataDir, "data-dir", "", "database directory (overrides config data_dir)")
	flag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := run(cfg); err != nil {
		slog.Error("corekvd exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := corekv.Open(cfg.DataDir, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	slog.Info("corekvd: database opened", "dataDir", cfg.DataDir, "poolSize", cfg.PoolSize)

	if err := demoTransaction(db); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("corekvd: shutting down")
	return nil
}

// demoTransaction exercises begin/lock/commit against a synthetic "demo"
// table, standing in for the executor layer this module does not
// implement.
func demoTransaction(db *corekv.Database) error {
	entry, err := db.Catalog.Lookup("demo")
	if err != nil {
		oid32, createErr := db.Catalog.Create("demo", page.Invalid)
		if createErr != nil {
			return createErr
		}
		entry.OID = oid32
	}

	ec := executor.Begin(db.Txns, db.Locks, db.Catalog, txn.ReadCommitted)
	rid := page.RID{PageID: 1, Slot: 0}
	if err := ec.LockForWrite(entry.OID, rid); err != nil {
		return err
	}
	ec.RecordWrite(entry.OID, rid, "insert")
	if err := ec.Commit(); err != nil {
		return err
	}

	slog.Info("corekvd: demo transaction committed", "txn", ec.Txn.ID())
	return nil
}
