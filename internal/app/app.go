// Package app wires the bronze pipeline from configuration: object store,
// DuckDB with the attached DuckLake catalog, the run ledger, metrics and the
// ingestion service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bronze-ingest/internal/config"
	"bronze-ingest/internal/db"
	"bronze-ingest/internal/db/repository"
	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/engine"
	"bronze-ingest/internal/schema"
	"bronze-ingest/internal/service/ingestion"
	"bronze-ingest/internal/storage"
)

// Deps holds what the caller must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger

	// Store overrides the object store opened from Cfg.LakeRoot.
	Store domain.ObjectStore
}

// App is the fully wired pipeline.
type App struct {
	Config   *config.Config
	Registry *config.Registry
	Service  *ingestion.Service
	Metrics  *prometheus.Registry

	duck   *sql.DB
	ledger *sql.DB
}

// New opens every resource the pipeline needs. On error, anything already
// opened is closed.
func New(ctx context.Context, deps Deps) (_ *App, err error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.RequireLakeRoot(); err != nil {
		return nil, err
	}

	registry, err := config.LoadRegistry(cfg.TablesFile)
	if err != nil {
		return nil, err
	}

	store := deps.Store
	if store == nil {
		store, err = storage.Open(ctx, cfg.LakeRoot, storageOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("open storage root: %w", err)
		}
	}

	a := &App{Config: cfg, Registry: registry}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.duck, err = sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	layout := storage.NewLayout(cfg.BronzeSchema, cfg.RawFileGlob)
	if err = engine.Setup(ctx, a.duck, cfg, store.URI(layout.DataPath())); err != nil {
		return nil, fmt.Errorf("set up engine: %w", err)
	}
	logger.Info("ducklake attached", "catalog", cfg.LakeCatalog, "data_path", store.URI(layout.DataPath()))

	a.ledger, err = db.OpenLedger(ctx, cfg.RunsDBPath)
	if err != nil {
		return nil, err
	}

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	runs := repository.NewIngestionRunRepo(a.ledger)
	orch := ingestion.NewOrchestrator(a.duck, store, schema.NewLoader(os.DirFS(cfg.SchemaDir)), runs,
		ingestion.NewMetrics(a.Metrics), ingestion.Config{
			Catalog: cfg.LakeCatalog,
			Layout:  layout,
			Retry: ingestion.RetryPolicy{
				MaxAttempts:     cfg.RetryMaxAttempts,
				InitialInterval: cfg.RetryInitialInterval,
				Timeout:         cfg.IOTimeout,
			},
			Concurrency: cfg.Concurrency,
		}, logger.With("component", "ingestion"))
	a.Service = ingestion.NewService(orch, registry, runs)
	return a, nil
}

// Close releases the engine and the ledger.
func (a *App) Close() error {
	var errs []error
	if a.duck != nil {
		errs = append(errs, a.duck.Close())
	}
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	return errors.Join(errs...)
}

func storageOptions(cfg *config.Config) storage.Options {
	opts := storage.Options{
		S3URLStyle:            cfg.S3URLStyle,
		GCSKeyFile:            cfg.GCSKeyFile,
		AzureAccountName:      cfg.AzureAccountName,
		AzureAccountKey:       cfg.AzureAccountKey,
		AzureConnectionString: cfg.AzureConnectionString,
		RequestsPerSecond:     cfg.StorageRPS,
	}
	if cfg.S3KeyID != nil {
		opts.S3KeyID = *cfg.S3KeyID
	}
	if cfg.S3Secret != nil {
		opts.S3Secret = *cfg.S3Secret
	}
	if cfg.S3Endpoint != nil {
		opts.S3Endpoint = *cfg.S3Endpoint
	}
	if cfg.S3Region != nil {
		opts.S3Region = *cfg.S3Region
	}
	return opts
}
