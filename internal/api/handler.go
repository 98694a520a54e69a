// Package api serves the bronze pipeline over HTTP: batch triggers, the run
// ledger, manifest regeneration, health and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/middleware"
)

// IngestionService is the part of ingestion.Service the API drives.
type IngestionService interface {
	Run(ctx context.Context, tables ...string) (*domain.BatchResult, error)
	Running() bool
	RegenerateManifest(ctx context.Context, table string) (*domain.Manifest, error)
	ListRuns(ctx context.Context, filter domain.IngestionRunFilter) ([]domain.IngestionRun, error)
}

// Options configures NewRouter.
type Options struct {
	Gatherer prometheus.Gatherer // served on /metrics; nil disables the route
	Trigger  middleware.ThrottleConfig
	Logger   *slog.Logger
}

// Handler implements the HTTP endpoints.
type Handler struct {
	svc IngestionService
}

// NewHandler creates a Handler.
func NewHandler(svc IngestionService) *Handler {
	return &Handler{svc: svc}
}

// NewRouter mounts the handler's routes behind the common middleware stack.
func NewRouter(h *Handler, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/runs", h.ListRuns)
	r.With(middleware.Throttle(opts.Trigger)).Post("/runs", h.TriggerRun)
	r.With(middleware.Throttle(opts.Trigger)).Post("/tables/{table}/manifest", h.RegenerateManifest)
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

// Health reports liveness and whether a batch is in progress.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Running: h.svc.Running()})
}

type listRunsResponse struct {
	Runs []domain.IngestionRun `json:"runs"`
}

// ListRuns returns ledger entries, newest first. Query: table, limit.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := domain.IngestionRunFilter{Table: r.URL.Query().Get("table")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, domain.ErrValidation("limit must be an integer between 1 and 1000"))
			return
		}
		filter.Limit = n
	}

	runs, err := h.svc.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}

// TriggerRun runs a batch synchronously and returns its summary. Repeated
// table query parameters select tables; none selects the whole registry.
// The batch outlives a disconnected client.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	tables := r.URL.Query()["table"]
	for _, t := range tables {
		if t == "" {
			writeError(w, domain.ErrValidation("table must not be empty"))
			return
		}
	}

	batch, err := h.svc.Run(context.WithoutCancel(r.Context()), tables...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch.Summary())
}

// RegenerateManifest rebuilds and returns a table's manifest.
func (h *Handler) RegenerateManifest(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.RegenerateManifest(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
