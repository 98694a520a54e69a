// Package db opens the SQLite run ledger and applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Mode selects how a pool is sized and locked.
type Mode string

// Pool modes.
const (
	// ModeWrite is a single-connection pool taking the write lock at BEGIN.
	ModeWrite Mode = "write"
	// ModeRead is a pool of concurrent readers.
	ModeRead Mode = "read"
)

// SQLite DSN parameters for the ledger.
const (
	busyTimeoutMillis = "5000"
	synchronous       = "NORMAL"
	journalMode       = "WAL"
	defaultReadConns  = 4
)

// Open opens a pool on the SQLite file at path, creating its directory when
// needed, and verifies it with a ping bounded by ctx.
//
// Both modes use WAL, busy_timeout=5000ms, synchronous=NORMAL and
// foreign_keys=on. maxOpen only applies to ModeRead (0 means 4).
func Open(ctx context.Context, path string, mode Mode, maxOpen int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}
	if dir := filepath.Dir(path); dir != "." && mode == ModeWrite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case ModeWrite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case ModeRead:
		if maxOpen <= 0 {
			maxOpen = defaultReadConns
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}
	return db, nil
}

// OpenLedger opens the run ledger for writing and brings its schema up to
// date. The ledger has a single writer, so one pool serves reads too.
func OpenLedger(ctx context.Context, path string) (*sql.DB, error) {
	db, err := Open(ctx, path, ModeWrite, 0)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func buildDSN(path string, mode Mode) string {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeoutMillis)
	params.Set("_synchronous", synchronous)
	params.Set("_foreign_keys", "on")
	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
