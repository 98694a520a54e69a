package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/storage"
)

// FileLister lists the current data files of a destination table.
type FileLister interface {
	ListFiles(ctx context.Context, conn domain.SQLConn, ref ddl.TableRef) ([]domain.ManifestFile, error)
}

// DuckLakeFiles lists data files through ducklake_list_files.
type DuckLakeFiles struct{}

// ListFiles implements FileLister.
func (DuckLakeFiles) ListFiles(ctx context.Context, conn domain.SQLConn, ref ddl.TableRef) ([]domain.ManifestFile, error) {
	q, err := ddl.ListDataFiles(ref)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list data files of %s: %w", ref, err)
	}
	defer rows.Close()

	files := []domain.ManifestFile{}
	for rows.Next() {
		var (
			f          domain.ManifestFile
			deleteFile sql.NullString
		)
		if err := rows.Scan(&f.Path, &f.SizeBytes, &deleteFile); err != nil {
			return nil, fmt.Errorf("scan data file: %w", err)
		}
		f.DeleteFile = deleteFile.String
		files = append(files, f)
	}
	return files, rows.Err()
}

// ManifestGenerator recomputes a table's manifest from its current data
// files and uploads it next to them.
type ManifestGenerator struct {
	store   domain.ObjectStore
	layout  storage.Layout
	catalog string
	files   FileLister
	retry   RetryPolicy
	clock   func() time.Time
	logger  *slog.Logger
}

// NewManifestGenerator creates a ManifestGenerator for tables of catalog.
// The schema is taken from layout. A nil files uses DuckLakeFiles.
func NewManifestGenerator(store domain.ObjectStore, layout storage.Layout, catalog string, files FileLister,
	retry RetryPolicy, clock func() time.Time, logger *slog.Logger) *ManifestGenerator {
	if files == nil {
		files = DuckLakeFiles{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &ManifestGenerator{
		store:   store,
		layout:  layout,
		catalog: catalog,
		files:   files,
		retry:   retry,
		clock:   clock,
		logger:  logger,
	}
}

// Generate lists the table's files, counts its rows and replaces the
// manifest document. Failures are reported as *domain.ManifestError.
func (g *ManifestGenerator) Generate(ctx context.Context, conn domain.SQLConn, table string) (*domain.Manifest, error) {
	m, err := g.generate(ctx, conn, table)
	if err != nil {
		return nil, &domain.ManifestError{Table: table, Err: err}
	}
	return m, nil
}

func (g *ManifestGenerator) generate(ctx context.Context, conn domain.SQLConn, table string) (*domain.Manifest, error) {
	ref := ddl.TableRef{Catalog: g.catalog, Schema: g.layout.Schema, Table: table}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	files, err := g.files.ListFiles(ctx, conn, ref)
	if err != nil {
		return nil, err
	}
	rowCount, err := countTableRows(ctx, conn, ref)
	if err != nil {
		return nil, err
	}

	key := g.layout.ManifestKey(table)
	m := &domain.Manifest{
		Table:       table,
		Schema:      g.layout.Schema,
		GeneratedAt: g.clock().UTC(),
		RowCount:    rowCount,
		Files:       files,
		Location:    g.store.URI(key),
	}
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	err = g.retry.Do(ctx, g.logger, "upload manifest", func(ctx context.Context) error {
		return g.store.Put(ctx, key, body, "application/json")
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", m.Location, err)
	}

	g.logger.Info("manifest regenerated", "table", table, "files", len(files), "location", m.Location)
	return m, nil
}

func countTableRows(ctx context.Context, conn domain.SQLConn, ref ddl.TableRef) (int64, error) {
	q, err := ddl.CountTableRows(ref)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", ref, err)
	}
	return n, nil
}
