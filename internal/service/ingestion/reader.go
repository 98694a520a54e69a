package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/schema"
	"bronze-ingest/internal/storage"
)

// Reader loads a table's raw JSON documents into a temporary relation bound
// to the table's schema.
type Reader struct {
	store  domain.ObjectStore
	layout storage.Layout
	retry  RetryPolicy
	logger *slog.Logger
}

// NewReader creates a Reader over the raw documents kept in store.
func NewReader(store domain.ObjectStore, layout storage.Layout, retry RetryPolicy, logger *slog.Logger) *Reader {
	return &Reader{store: store, layout: layout, retry: retry, logger: logger}
}

// Read loads raw_data/{table}/ into the relation raw_{table} on conn. Only
// the results column is kept. The source must hold at least one object and
// every document must conform to s.
func (r *Reader) Read(ctx context.Context, conn domain.SQLConn, spec domain.TableSpec, s *schema.Schema) (*domain.RawRecordSet, error) {
	prefix := r.layout.RawPrefix(spec.Name)
	var objects []domain.ObjectInfo
	err := r.retry.Do(ctx, r.logger, "list raw", func(ctx context.Context) error {
		var err error
		objects, err = r.store.List(ctx, prefix, 1)
		return err
	})
	if err != nil {
		return nil, domain.ErrRead(spec.Name, err, "list %s", r.store.URI(prefix))
	}
	if len(objects) == 0 {
		return nil, domain.ErrRead(spec.Name, nil, "no raw documents under %s", r.store.URI(prefix))
	}

	columns, err := s.Columns()
	if err != nil {
		return nil, err
	}
	fields, err := s.ElementFields()
	if err != nil {
		return nil, err
	}

	relation := ddl.RawRelation(spec.Name)
	glob := r.store.URI(r.layout.RawPattern(spec.Name))
	readSQL, err := ddl.ReadJSON(relation, glob, columns, domain.ResultsField)
	if err != nil {
		return nil, domain.ErrValidation("build read for %q: %v", spec.Name, err)
	}

	err = r.retry.Do(ctx, r.logger, "read raw", func(ctx context.Context) error {
		_, err := conn.ExecContext(ctx, readSQL)
		return classifyEngineError(err)
	})
	if err != nil {
		return nil, domain.ErrRead(spec.Name, err, "load %s", glob)
	}

	count, err := countRows(ctx, conn, relation)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("read raw documents", "table", spec.Name, "source", glob, "documents", count)
	return &domain.RawRecordSet{
		Table:         spec.Name,
		Relation:      relation,
		RowCount:      count,
		ElementFields: fields,
	}, nil
}

func countRows(ctx context.Context, conn domain.SQLConn, relation string) (int64, error) {
	q, err := ddl.CountRows(relation)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", relation, err)
	}
	return n, nil
}
