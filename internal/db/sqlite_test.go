package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		mode       Mode
		wantTxLock bool
	}{
		{mode: ModeWrite, wantTxLock: true},
		{mode: ModeRead, wantTxLock: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			dsn := buildDSN("/tmp/runs.sqlite", tt.mode)
			assert.True(t, strings.HasPrefix(dsn, "/tmp/runs.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Contains(t, dsn, "_foreign_keys=on")
			if tt.wantTxLock {
				assert.Contains(t, dsn, "_txlock=immediate")
			} else {
				assert.NotContains(t, dsn, "_txlock")
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid_mode", func(t *testing.T) {
		_, err := Open(ctx, filepath.Join(t.TempDir(), "x.sqlite"), "append", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SQLite mode")
	})

	t.Run("write_creates_directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state", "runs.sqlite")
		db, err := Open(ctx, path, ModeWrite, 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		var mode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", strings.ToLower(mode))

		var timeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	})

	t.Run("read_default_pool", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runs.sqlite")
		w, err := Open(ctx, path, ModeWrite, 0)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		db, err := Open(ctx, path, ModeRead, 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		assert.Equal(t, 4, db.Stats().MaxOpenConnections)
	})
}

func TestOpenLedger_MigratesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.sqlite")

	db, err := OpenLedger(ctx, path)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'ingestion_runs'`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, db.Close())

	db, err = OpenLedger(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	applied, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, applied, "reopening applies nothing")
}
