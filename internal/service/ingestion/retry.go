package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"bronze-ingest/internal/domain"
)

// RetryPolicy bounds the retries of one storage or engine call.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Timeout         time.Duration // per attempt; zero disables
}

// DefaultRetryPolicy mirrors the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second, Timeout: 2 * time.Minute}
}

// Do runs fn until it succeeds, returns a permanent error, or the attempts
// are used up. Each attempt gets its own timeout derived from ctx.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("retrying", "op", op, "attempt", attempt, "backoff", wait, "error", err)
	}

	return unwrapPermanent(backoff.RetryNotify(operation, policy, notify))
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent wraps err so that RetryPolicy.Do gives up immediately. The
// wrapper is transparent to errors.As and errors.Is.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// unwrapPermanent strips the marker added by permanent.
func unwrapPermanent(err error) error {
	if p, ok := err.(*permanentError); ok {
		return p.err
	}
	return err
}

func isPermanent(err error) bool {
	var (
		marked     *permanentError
		schemaErr  *domain.SchemaNotFoundError
		validation *domain.ValidationError
		keyMissing *domain.MergeKeyMissingError
		readErr    *domain.ReadError
	)
	switch {
	case errors.As(err, &marked),
		errors.As(err, &schemaErr),
		errors.As(err, &validation),
		errors.As(err, &keyMissing),
		errors.As(err, &readErr):
		return true
	case errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// permanentEngineMessages are substrings of DuckDB errors that no retry can
// fix. They are checked before transientEngineMessages because DuckDB
// reports a missing glob match as an IO Error.
var permanentEngineMessages = []string{
	"No files found",
	"Malformed JSON",
	"Invalid Input Error",
	"Conversion Error",
	"Binder Error",
	"Parser Error",
	"Catalog Error",
	"Constraint Error",
}

// transientEngineMessages are substrings of DuckDB errors raised by the
// filesystem or network layer rather than by the data itself.
var transientEngineMessages = []string{
	"IO Error",
	"HTTP Error",
	"HTTP GET error",
	"HTTP HEAD error",
	"Connection",
	"connection reset",
	"timed out",
	"Timeout",
	"SlowDown",
	"503",
	"429",
	"could not set lock",
	"Could not set lock",
	"write-write conflict",
	"Transaction conflict",
}

// classifyEngineError decides whether a failed engine statement is worth
// another attempt. Anything not recognised as an I/O problem is permanent.
func classifyEngineError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	for _, s := range permanentEngineMessages {
		if strings.Contains(msg, s) {
			return permanent(err)
		}
	}
	for _, s := range transientEngineMessages {
		if strings.Contains(msg, s) {
			return err
		}
	}
	return permanent(err)
}
