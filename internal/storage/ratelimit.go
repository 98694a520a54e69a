package storage

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"bronze-ingest/internal/domain"
)

var _ domain.ObjectStore = (*RateLimitedStore)(nil)

// RateLimitedStore throttles calls to an underlying ObjectStore with a
// token-bucket limiter shared by all tables of the process.
type RateLimitedStore struct {
	next    domain.ObjectStore
	limiter *rate.Limiter
}

// NewRateLimited wraps next so each List and Put waits for a limiter token.
func NewRateLimited(next domain.ObjectStore, limiter *rate.Limiter) *RateLimitedStore {
	return &RateLimitedStore{next: next, limiter: limiter}
}

// List waits for a token, then delegates.
func (s *RateLimitedStore) List(ctx context.Context, prefix string, limit int) ([]domain.ObjectInfo, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("storage rate limit: %w", err)
	}
	return s.next.List(ctx, prefix, limit)
}

// Put waits for a token, then delegates.
func (s *RateLimitedStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("storage rate limit: %w", err)
	}
	return s.next.Put(ctx, key, body, contentType)
}

// URI delegates without consuming a token.
func (s *RateLimitedStore) URI(key string) string { return s.next.URI(key) }
