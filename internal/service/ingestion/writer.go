package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
)

// Writer commits normalized records to the destination table: a full
// overwrite for new tables, a key merge for populated ones.
type Writer struct {
	catalog   string
	schema    string
	manifests *ManifestGenerator
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewWriter creates a Writer for tables in catalog.schema. Manifests are
// regenerated after every merge.
func NewWriter(catalog, schema string, manifests *ManifestGenerator, retry RetryPolicy, logger *slog.Logger) *Writer {
	return &Writer{catalog: catalog, schema: schema, manifests: manifests, retry: retry, logger: logger}
}

// Write applies records according to verdict.
func (w *Writer) Write(ctx context.Context, conn domain.SQLConn, spec domain.TableSpec, records *domain.NormalizedRecordSet, verdict domain.Verdict) (*domain.WriteResult, error) {
	ref := ddl.TableRef{Catalog: w.catalog, Schema: w.schema, Table: spec.Name}
	if err := ref.Validate(); err != nil {
		return nil, domain.ErrValidation("destination for %q: %v", spec.Name, err)
	}

	switch verdict {
	case domain.VerdictEmpty:
		return w.overwrite(ctx, conn, spec, ref, records)
	case domain.VerdictPopulated:
		return w.merge(ctx, conn, spec, ref, records)
	case domain.VerdictProbeFailed:
		return nil, &domain.ProbeFailedError{
			Table: spec.Name,
			Err:   errors.New("refusing to write without a conclusive existence probe"),
		}
	default:
		return nil, domain.ErrValidation("unknown verdict %q for %q", verdict, spec.Name)
	}
}

func (w *Writer) overwrite(ctx context.Context, conn domain.SQLConn, spec domain.TableSpec, ref ddl.TableRef, records *domain.NormalizedRecordSet) (*domain.WriteResult, error) {
	q, err := ddl.Overwrite(ref, records.Relation)
	if err != nil {
		return nil, domain.ErrValidation("build overwrite for %q: %v", spec.Name, err)
	}
	var partition string
	if spec.PartitionHint != "" {
		if !records.HasColumn(spec.PartitionHint) {
			return nil, domain.ErrValidation("partition column %q is not a column of %q", spec.PartitionHint, spec.Name)
		}
		if partition, err = ddl.SetPartitionedBy(ref, spec.PartitionHint); err != nil {
			return nil, domain.ErrValidation("build partitioning for %q: %v", spec.Name, err)
		}
	}

	err = w.retry.Do(ctx, w.logger, "overwrite", func(ctx context.Context) error {
		_, err := conn.ExecContext(ctx, q)
		return classifyEngineError(err)
	})
	if err != nil {
		return nil, &domain.WriteError{Table: spec.Name, Op: domain.WriteOpOverwrite, Err: err}
	}

	if partition != "" {
		err = w.retry.Do(ctx, w.logger, "set partitioning", func(ctx context.Context) error {
			_, err := conn.ExecContext(ctx, partition)
			return classifyEngineError(err)
		})
		if err != nil {
			return nil, &domain.WriteError{Table: spec.Name, Op: domain.WriteOpOverwrite, Err: fmt.Errorf("partition by %s: %w", spec.PartitionHint, err)}
		}
	}

	rows, err := countTableRows(ctx, conn, ref)
	if err != nil {
		return nil, &domain.WriteError{Table: spec.Name, Op: domain.WriteOpOverwrite, Err: err}
	}
	w.logger.Info("table overwritten", "table", spec.Name, "rows", rows)
	return &domain.WriteResult{Op: domain.WriteOpOverwrite, RowsWritten: rows}, nil
}

func (w *Writer) merge(ctx context.Context, conn domain.SQLConn, spec domain.TableSpec, ref ddl.TableRef, records *domain.NormalizedRecordSet) (*domain.WriteResult, error) {
	if !spec.HasMatchKey() {
		return nil, &domain.MergeKeyMissingError{Table: spec.Name}
	}
	if !records.HasColumn(spec.MatchKey) {
		return nil, domain.ErrValidation("match key %q is not a column of %q", spec.MatchKey, spec.Name)
	}

	dupSQL, err := ddl.DuplicateKeys(ref, records.Relation, spec.MatchKey)
	if err != nil {
		return nil, domain.ErrValidation("build duplicate check for %q: %v", spec.Name, err)
	}
	var dups int64
	if err := conn.QueryRowContext(ctx, dupSQL).Scan(&dups); err != nil {
		return nil, &domain.WriteError{Table: spec.Name, Op: domain.WriteOpMerge, Err: fmt.Errorf("check duplicate keys: %w", err)}
	}
	if dups > 0 {
		return nil, &domain.WriteError{
			Table: spec.Name,
			Op:    domain.WriteOpMerge,
			Err:   fmt.Errorf("%d %s values occur more than once in the incoming records and match existing rows", dups, spec.MatchKey),
		}
	}

	columns := make([]string, len(records.Columns))
	for i, c := range records.Columns {
		columns[i] = c.Name
	}
	q, err := ddl.Merge(ref, records.Relation, spec.MatchKey, columns)
	if err != nil {
		return nil, domain.ErrValidation("build merge for %q: %v", spec.Name, err)
	}

	err = w.retry.Do(ctx, w.logger, "merge", func(ctx context.Context) error {
		_, err := conn.ExecContext(ctx, q)
		return classifyEngineError(err)
	})
	if err != nil {
		return nil, &domain.WriteError{Table: spec.Name, Op: domain.WriteOpMerge, Err: err}
	}

	rows, err := countTableRows(ctx, conn, ref)
	if err != nil {
		return nil, &domain.WriteError{Table: spec.Name, Op: domain.WriteOpMerge, Err: err}
	}
	w.logger.Info("table merged", "table", spec.Name, "key", spec.MatchKey, "rows", rows)

	result := &domain.WriteResult{Op: domain.WriteOpMerge, RowsWritten: rows}
	if w.manifests == nil {
		return result, nil
	}
	// The merge is committed at this point; a manifest failure only leaves
	// the manifest stale.
	m, err := w.manifests.Generate(ctx, conn, spec.Name)
	if err != nil {
		w.logger.Warn("manifest regeneration failed", "table", spec.Name, "error", err)
		result.ManifestWarning = err
		return result, nil
	}
	result.Manifest = m
	return result, nil
}
