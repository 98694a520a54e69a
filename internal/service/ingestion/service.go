package ingestion

import (
	"context"
	"sync/atomic"

	"bronze-ingest/internal/domain"
)

// TableRegistry resolves table names to specs.
// Implemented by config.Registry.
type TableRegistry interface {
	Select(names ...string) ([]domain.TableSpec, error)
}

// Service is the entry point used by the CLI, the scheduler and the HTTP
// API. At most one batch runs at a time per Service.
type Service struct {
	orch     *Orchestrator
	registry TableRegistry
	runs     domain.IngestionRunRepository
	running  atomic.Bool
}

// NewService creates a Service. runs may be nil, in which case ListRuns
// returns nothing.
func NewService(orch *Orchestrator, registry TableRegistry, runs domain.IngestionRunRepository) *Service {
	return &Service{orch: orch, registry: registry, runs: runs}
}

// Run runs the named tables, or every registry table when none are named.
// It returns a ConflictError when another batch of this Service is running.
func (s *Service) Run(ctx context.Context, tables ...string) (*domain.BatchResult, error) {
	specs, err := s.registry.Select(tables...)
	if err != nil {
		return nil, err
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrConflict("an ingestion batch is already running")
	}
	defer s.running.Store(false)

	return s.orch.RunBatch(ctx, specs), nil
}

// Running reports whether a batch is in progress.
func (s *Service) Running() bool { return s.running.Load() }

// RegenerateManifest rebuilds the manifest of a registry table.
func (s *Service) RegenerateManifest(ctx context.Context, table string) (*domain.Manifest, error) {
	if _, err := s.registry.Select(table); err != nil {
		return nil, err
	}
	return s.orch.RegenerateManifest(ctx, table)
}

// ListRuns returns ledger entries, newest first.
func (s *Service) ListRuns(ctx context.Context, filter domain.IngestionRunFilter) ([]domain.IngestionRun, error) {
	if s.runs == nil {
		return []domain.IngestionRun{}, nil
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.runs.List(ctx, filter)
}
