package ingestion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/robfig/cron/v3"

	"bronze-ingest/internal/domain"
)

// Scheduler runs the full batch on a cron schedule. A tick that fires while
// the previous batch is still running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	svc      *Service
	schedule string
	logger   *slog.Logger
}

// NewScheduler creates a scheduler for svc. The schedule accepts the
// standard five-field cron syntax and descriptors such as @hourly.
func NewScheduler(svc *Service, schedule string, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		svc:      svc,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the batch job and starts the cron scheduler. Batches run
// with ctx, so canceling it stops in-flight tables.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() { s.runOnce(ctx) })
	if err != nil {
		return domain.ErrValidation("invalid schedule %q: %v", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("ingestion scheduler started", "schedule", s.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running batch to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("ingestion scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.svc.Run(ctx)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			s.logger.Info("scheduled batch skipped", "reason", err)
			return
		}
		s.logger.Error("scheduled batch failed", "error", err)
		return
	}
	s.logger.Info("scheduled batch finished", "batch_id", result.ID, "tables", len(result.Runs), "failed", result.FailedCount())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
