package domain

import (
	"context"
	"database/sql"
	"time"
)

// SQLConn is the subset of *sql.DB / *sql.Conn the pipeline stages use.
// Stages of one table run share a pinned *sql.Conn so that temporary
// relations stay visible between them.
type SQLConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the object-storage client the pipeline needs: bounded
// listings for existence checks and small uploads for manifests.
// Implemented by storage.S3Store, storage.GCSStore, storage.AzureStore and
// storage.LocalStore.
type ObjectStore interface {
	// List returns up to limit objects whose keys start with prefix.
	List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
	// Put stores body under key, replacing any existing object.
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// URI returns the engine-readable location of key (e.g. s3://bucket/key).
	URI(key string) string
}

// IngestionRunRepository persists the per-table run ledger.
// Implemented by repository.IngestionRunRepo.
type IngestionRunRepository interface {
	Create(ctx context.Context, run *IngestionRun) error
	UpdateStage(ctx context.Context, id string, stage Stage) error
	Finish(ctx context.Context, run *IngestionRun) error
	List(ctx context.Context, filter IngestionRunFilter) ([]IngestionRun, error)
}
