package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bronze-ingest/internal/domain"
)

// Compile-time check.
var _ domain.IngestionRunRepository = (*IngestionRunRepo)(nil)

// IngestionRunRepo implements IngestionRunRepository using SQLite.
type IngestionRunRepo struct {
	db *sql.DB
}

// NewIngestionRunRepo creates a new IngestionRunRepo.
func NewIngestionRunRepo(db *sql.DB) *IngestionRunRepo {
	return &IngestionRunRepo{db: db}
}

const runColumns = `id, batch_id, table_name, stage, status, verdict, error_kind, error_message,
	manifest_warning, rows_normalized, rows_written, started_at, finished_at`

// Create inserts a run record.
func (r *IngestionRunRepo) Create(ctx context.Context, run *domain.IngestionRun) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO ingestion_runs (`+runColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BatchID, run.Table, string(run.Stage), string(run.Status),
		nullVerdict(run.Verdict), nullString(run.ErrorKind), nullString(run.ErrorMessage),
		nullString(run.ManifestWarning), nullInt64(run.RowsNormalized), nullInt64(run.RowsWritten),
		formatTime(run.StartedAt), nullTime(run.FinishedAt))
	return mapDBError(err)
}

// UpdateStage records the stage a running table has entered.
func (r *IngestionRunRepo) UpdateStage(ctx context.Context, id string, stage domain.Stage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ingestion_runs SET stage = ? WHERE id = ? AND finished_at IS NULL`, string(stage), id)
	if err != nil {
		return mapDBError(err)
	}
	return requireOneRow(res, id)
}

// Finish stores the terminal state of a run.
func (r *IngestionRunRepo) Finish(ctx context.Context, run *domain.IngestionRun) error {
	res, err := r.db.ExecContext(ctx, `UPDATE ingestion_runs SET
	stage = ?, status = ?, verdict = ?, error_kind = ?, error_message = ?,
	manifest_warning = ?, rows_normalized = ?, rows_written = ?, finished_at = ?
WHERE id = ?`,
		string(run.Stage), string(run.Status), nullVerdict(run.Verdict),
		nullString(run.ErrorKind), nullString(run.ErrorMessage), nullString(run.ManifestWarning),
		nullInt64(run.RowsNormalized), nullInt64(run.RowsWritten), nullTime(run.FinishedAt),
		run.ID)
	if err != nil {
		return mapDBError(err)
	}
	return requireOneRow(res, run.ID)
}

// List returns runs newest first, optionally for one table.
func (r *IngestionRunRepo) List(ctx context.Context, filter domain.IngestionRunFilter) ([]domain.IngestionRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs
WHERE (? = '' OR table_name = ?)
ORDER BY started_at DESC, id DESC
LIMIT ?`, filter.Table, filter.Table, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	runs := []domain.IngestionRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetByID returns one run.
func (r *IngestionRunRepo) GetByID(ctx context.Context, id string) (*domain.IngestionRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.IngestionRun, error) {
	var (
		run                               domain.IngestionRun
		stage, status, startedAt          string
		verdict, errKind, errMsg, warning sql.NullString
		finishedAt                        sql.NullString
		rowsNormalized, rowsWritten       sql.NullInt64
	)
	err := s.Scan(&run.ID, &run.BatchID, &run.Table, &stage, &status, &verdict, &errKind, &errMsg,
		&warning, &rowsNormalized, &rowsWritten, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Stage = domain.Stage(stage)
	run.Status = domain.RunStatus(status)
	if verdict.Valid {
		v := domain.Verdict(verdict.String)
		run.Verdict = &v
	}
	run.ErrorKind = stringPtr(errKind)
	run.ErrorMessage = stringPtr(errMsg)
	run.ManifestWarning = stringPtr(warning)
	run.RowsNormalized = int64Ptr(rowsNormalized)
	run.RowsWritten = int64Ptr(rowsWritten)

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullVerdict(v *domain.Verdict) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound("ingestion run %q not found or already finished", id)
	}
	return nil
}
