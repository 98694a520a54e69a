package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
)

// Normalizer flattens raw documents into one row per results element,
// stamps the load timestamp and removes exact duplicates.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize builds stage_{table} from the raw relation. loadedAt is
// truncated to the second and written to every row.
func (n *Normalizer) Normalize(ctx context.Context, conn domain.SQLConn, raw *domain.RawRecordSet, loadedAt time.Time) (*domain.NormalizedRecordSet, error) {
	loadedAt = loadedAt.Truncate(time.Second)

	fields := make([]string, len(raw.ElementFields))
	for i, f := range raw.ElementFields {
		fields[i] = f.Name
	}

	relation := ddl.StageRelation(raw.Table)
	q, err := ddl.Normalize(relation, raw.Relation, domain.ResultsField, fields, domain.LoadTimestampColumn, loadedAt)
	if err != nil {
		return nil, domain.ErrValidation("build normalization for %q: %v", raw.Table, err)
	}
	if _, err := conn.ExecContext(ctx, q); err != nil {
		return nil, fmt.Errorf("normalize %q: %w", raw.Table, err)
	}

	columns, err := describe(ctx, conn, relation)
	if err != nil {
		return nil, err
	}
	count, err := countRows(ctx, conn, relation)
	if err != nil {
		return nil, err
	}

	n.logger.Info("normalized records", "table", raw.Table, "rows", count, "documents", raw.RowCount)
	return &domain.NormalizedRecordSet{
		Table:    raw.Table,
		Relation: relation,
		Columns:  columns,
		RowCount: count,
		LoadedAt: loadedAt,
	}, nil
}

// describe returns the columns of relation in order. DESCRIBE yields
// column_name and column_type followed by nullable metadata columns.
func describe(ctx context.Context, conn domain.SQLConn, relation string) ([]domain.Column, error) {
	q, err := ddl.DescribeRelation(relation)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", relation, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", relation, err)
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("describe %s: unexpected result shape %v", relation, names)
	}

	var columns []domain.Column
	for rows.Next() {
		values := make([]sql.NullString, len(names))
		dest := make([]any, len(names))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("describe %s: %w", relation, err)
		}
		columns = append(columns, domain.Column{Name: values[0].String, Type: values[1].String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", relation, err)
	}
	return columns, nil
}
