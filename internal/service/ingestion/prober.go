package ingestion

import (
	"context"
	"log/slog"

	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/storage"
)

// Prober decides whether a destination already holds committed data by
// inspecting at most one object under the destination prefix.
type Prober struct {
	store  domain.ObjectStore
	layout storage.Layout
	retry  RetryPolicy
	logger *slog.Logger
}

// NewProber creates a Prober for destinations kept in store.
func NewProber(store domain.ObjectStore, layout storage.Layout, retry RetryPolicy, logger *slog.Logger) *Prober {
	return &Prober{store: store, layout: layout, retry: retry, logger: logger}
}

// Probe returns VerdictEmpty when the destination prefix lists no object or
// its first object is empty, and VerdictPopulated otherwise. A listing that
// keeps failing yields VerdictProbeFailed and a ProbeFailedError; it is
// never reported as empty.
func (p *Prober) Probe(ctx context.Context, spec domain.TableSpec) (domain.Verdict, error) {
	prefix := p.layout.DestinationPrefix(spec.Name)

	var objects []domain.ObjectInfo
	err := p.retry.Do(ctx, p.logger, "probe destination", func(ctx context.Context) error {
		var err error
		objects, err = p.store.List(ctx, prefix, 1)
		return err
	})
	if err != nil {
		return domain.VerdictProbeFailed, &domain.ProbeFailedError{Table: spec.Name, Err: err}
	}

	verdict := domain.VerdictPopulated
	if len(objects) == 0 || objects[0].Size == 0 {
		verdict = domain.VerdictEmpty
	}
	p.logger.Debug("probed destination", "table", spec.Name, "prefix", p.store.URI(prefix), "verdict", verdict)
	return verdict, nil
}
