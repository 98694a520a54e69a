// Package ingestion runs tables through the bronze pipeline: load the
// schema, read the raw documents, normalize them, probe the destination and
// write by overwrite or merge.
package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/schema"
	"bronze-ingest/internal/storage"
)

// SchemaLoader resolves a table name to its schema.
// Implemented by schema.Loader.
type SchemaLoader interface {
	Load(ctx context.Context, table string) (*schema.Schema, error)
}

// Config holds the orchestrator settings.
type Config struct {
	Catalog     string
	Layout      storage.Layout
	Retry       RetryPolicy
	Concurrency int
	Clock       func() time.Time // defaults to time.Now
	Files       FileLister       // defaults to DuckLakeFiles
}

// Orchestrator sequences the pipeline stages of each table on a pinned
// DuckDB connection and isolates failures per table.
type Orchestrator struct {
	db          *sql.DB
	schemas     SchemaLoader
	reader      *Reader
	normalizer  *Normalizer
	prober      *Prober
	writer      *Writer
	manifests   *ManifestGenerator
	runs        domain.IngestionRunRepository
	metrics     *Metrics
	clock       func() time.Time
	concurrency int
	locks       *tableLocks
	logger      *slog.Logger
}

// NewOrchestrator wires the pipeline components. runs and metrics may be nil.
func NewOrchestrator(db *sql.DB, store domain.ObjectStore, schemas SchemaLoader,
	runs domain.IngestionRunRepository, metrics *Metrics, cfg Config, logger *slog.Logger) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	manifests := NewManifestGenerator(store, cfg.Layout, cfg.Catalog, cfg.Files, cfg.Retry, clock, logger)
	return &Orchestrator{
		db:          db,
		schemas:     schemas,
		reader:      NewReader(store, cfg.Layout, cfg.Retry, logger),
		normalizer:  NewNormalizer(logger),
		prober:      NewProber(store, cfg.Layout, cfg.Retry, logger),
		writer:      NewWriter(cfg.Catalog, cfg.Layout.Schema, manifests, cfg.Retry, logger),
		manifests:   manifests,
		runs:        runs,
		metrics:     metrics,
		clock:       clock,
		concurrency: concurrency,
		locks:       newTableLocks(),
		logger:      logger,
	}
}

// RunBatch runs every table in specs with bounded parallelism. A failing
// table never stops the others. Results keep the order of specs.
func (o *Orchestrator) RunBatch(ctx context.Context, specs []domain.TableSpec) *domain.BatchResult {
	batch := &domain.BatchResult{ID: domain.NewID(), Runs: make([]*domain.TableRun, len(specs))}
	logger := o.logger.With("batch_id", batch.ID)
	logger.Info("batch started", "tables", len(specs), "concurrency", o.concurrency)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			batch.Runs[i] = o.runTable(ctx, batch.ID, spec)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("batch finished", "tables", len(specs), "failed", batch.FailedCount())
	return batch
}

// RunTable runs a single table outside of a batch.
func (o *Orchestrator) RunTable(ctx context.Context, spec domain.TableSpec) *domain.TableRun {
	return o.runTable(ctx, "", spec)
}

// RegenerateManifest rebuilds the manifest of table without touching its
// data, repairing a table whose merge committed but whose manifest did not.
func (o *Orchestrator) RegenerateManifest(ctx context.Context, table string) (*domain.Manifest, error) {
	unlock := o.locks.lock(table)
	defer unlock()

	conn, err := o.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return o.manifests.Generate(ctx, conn, table)
}

func (o *Orchestrator) runTable(ctx context.Context, batchID string, spec domain.TableSpec) (run *domain.TableRun) {
	run = &domain.TableRun{
		ID:        domain.NewID(),
		BatchID:   batchID,
		Table:     spec.Name,
		Status:    domain.RunStatusRunning,
		StartedAt: o.clock(),
	}
	logger := o.logger.With("run_id", run.ID, "table", spec.Name)

	unlock := o.locks.lock(spec.Name)
	defer unlock()

	o.recordStart(ctx, run, logger)
	defer func() {
		if r := recover(); r != nil {
			stage := run.Stage
			if stage == "" || stage == domain.StageFailed {
				stage = domain.StageLoadSchema
			}
			o.fail(run, stage, fmt.Errorf("panic: %v", r), logger)
		}
		o.finish(ctx, run, logger)
	}()

	conn, err := o.db.Conn(ctx)
	if err != nil {
		o.fail(run, domain.StageLoadSchema, fmt.Errorf("acquire connection: %w", err), logger)
		return run
	}
	defer func() {
		o.dropTemp(conn, spec.Name, logger)
		_ = conn.Close()
	}()

	var s *schema.Schema
	if !o.stage(ctx, run, domain.StageLoadSchema, logger, func() (err error) {
		s, err = o.schemas.Load(ctx, spec.Name)
		return err
	}) {
		return run
	}

	var raw *domain.RawRecordSet
	if !o.stage(ctx, run, domain.StageReadRaw, logger, func() (err error) {
		raw, err = o.reader.Read(ctx, conn, spec, s)
		return err
	}) {
		return run
	}

	var records *domain.NormalizedRecordSet
	if !o.stage(ctx, run, domain.StageNormalize, logger, func() (err error) {
		records, err = o.normalizer.Normalize(ctx, conn, raw, o.clock().UTC())
		if err == nil {
			run.RowsNormalized = records.RowCount
			o.metrics.setRowsNormalized(spec.Name, records.RowCount)
		}
		return err
	}) {
		return run
	}

	if !o.stage(ctx, run, domain.StageProbeExistence, logger, func() (err error) {
		run.Verdict, err = o.prober.Probe(ctx, spec)
		return err
	}) {
		return run
	}

	if !o.stage(ctx, run, domain.StageWrite, logger, func() error {
		result, err := o.writer.Write(ctx, conn, spec, records, run.Verdict)
		if err != nil {
			return err
		}
		run.RowsWritten = result.RowsWritten
		run.Warning = result.ManifestWarning
		o.metrics.setRowsWritten(spec.Name, result.RowsWritten)
		return nil
	}) {
		return run
	}

	run.Stage = domain.StageDone
	run.Status = domain.RunStatusDone
	return run
}

// stage enters stage, runs fn and reports whether the run may continue.
func (o *Orchestrator) stage(ctx context.Context, run *domain.TableRun, stage domain.Stage, logger *slog.Logger, fn func() error) bool {
	run.Stage = stage
	if o.runs != nil {
		if err := o.runs.UpdateStage(ctx, run.ID, stage); err != nil {
			logger.Warn("record stage", "stage", stage, "error", err)
		}
	}

	start := time.Now()
	err := fn()
	o.metrics.observeStage(stage, time.Since(start))
	if err != nil {
		o.fail(run, stage, err, logger)
		return false
	}
	return true
}

func (o *Orchestrator) fail(run *domain.TableRun, stage domain.Stage, err error, logger *slog.Logger) {
	run.FailedStage = stage
	run.Stage = domain.StageFailed
	run.Status = domain.RunStatusFailed
	run.Err = err
	logger.Error("table run failed", "stage", stage, "kind", domain.ErrorKind(err), "error", err)
}

func (o *Orchestrator) recordStart(ctx context.Context, run *domain.TableRun, logger *slog.Logger) {
	if o.runs == nil {
		return
	}
	err := o.runs.Create(ctx, &domain.IngestionRun{
		ID:        run.ID,
		BatchID:   run.BatchID,
		Table:     run.Table,
		Stage:     domain.StageLoadSchema,
		Status:    domain.RunStatusRunning,
		StartedAt: run.StartedAt,
	})
	if err != nil {
		logger.Warn("record run start", "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, run *domain.TableRun, logger *slog.Logger) {
	run.FinishedAt = o.clock()
	o.metrics.observeRun(run)

	if run.Status == domain.RunStatusDone {
		attrs := []any{"verdict", run.Verdict, "rows", run.RowsWritten,
			"duration", run.FinishedAt.Sub(run.StartedAt)}
		if run.Warning != nil {
			logger.Warn("table run done with warning", append(attrs, "warning", run.Warning)...)
		} else {
			logger.Info("table run done", attrs...)
		}
	}

	if o.runs == nil {
		return
	}
	// The ledger outlives a canceled run.
	if err := o.runs.Finish(context.WithoutCancel(ctx), toLedger(run)); err != nil {
		logger.Warn("record run finish", "error", err)
	}
}

// dropTemp removes the run's temporary relations. It uses a fresh context
// so that cleanup happens even after ctx is canceled.
func (o *Orchestrator) dropTemp(conn domain.SQLConn, table string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, rel := range []string{ddl.RawRelation(table), ddl.StageRelation(table)} {
		q, err := ddl.DropRelation(rel)
		if err != nil {
			continue
		}
		if _, err := conn.ExecContext(ctx, q); err != nil {
			logger.Debug("drop temp relation", "relation", rel, "error", err)
		}
	}
}

func toLedger(run *domain.TableRun) *domain.IngestionRun {
	rec := &domain.IngestionRun{
		ID:        run.ID,
		BatchID:   run.BatchID,
		Table:     run.Table,
		Stage:     run.Stage,
		Status:    run.Status,
		StartedAt: run.StartedAt,
	}
	if run.Verdict != "" {
		v := run.Verdict
		rec.Verdict = &v
	}
	if run.Err != nil {
		kind, msg := domain.ErrorKind(run.Err), run.Err.Error()
		rec.ErrorKind, rec.ErrorMessage = &kind, &msg
		rec.Stage = run.FailedStage
	}
	if run.Warning != nil {
		w := run.Warning.Error()
		rec.ManifestWarning = &w
	}
	if run.RowsNormalized > 0 || run.Status == domain.RunStatusDone {
		n := run.RowsNormalized
		rec.RowsNormalized = &n
	}
	if run.Status == domain.RunStatusDone {
		n := run.RowsWritten
		rec.RowsWritten = &n
	}
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt
		rec.FinishedAt = &t
	}
	return rec
}

// tableLocks serializes runs of the same table within the process.
type tableLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTableLocks() *tableLocks {
	return &tableLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *tableLocks) lock(table string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[table]
	if !ok {
		m = &sync.Mutex{}
		l.locks[table] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
