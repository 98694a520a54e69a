package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"bronze-ingest/internal/domain"
)

var _ domain.ObjectStore = (*GCSStore)(nil)

// GCSStore is an ObjectStore over a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	loc    Location
}

// NewGCSStore creates a GCSStore for loc. A service-account key file is used
// when configured; otherwise application default credentials apply.
func NewGCSStore(ctx context.Context, loc Location, opts Options) (*GCSStore, error) {
	if loc.Scheme != SchemeGCS {
		return nil, fmt.Errorf("expected gs location, got %q", loc.Scheme)
	}

	var clientOpts []option.ClientOption
	if opts.GCSKeyFile != "" {
		clientOpts = append(clientOpts, option.WithAuthCredentialsFile(option.ServiceAccount, opts.GCSKeyFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, loc: loc}, nil
}

// List returns up to limit objects under prefix (limit <= 0 lists all).
func (s *GCSStore) List(ctx context.Context, prefix string, limit int) ([]domain.ObjectInfo, error) {
	it := s.client.Bucket(s.loc.Bucket).Objects(ctx, &storage.Query{Prefix: s.loc.Prefix + prefix})
	var out []domain.ObjectInfo
	for limit <= 0 || len(out) < limit {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", s.loc.Bucket, s.loc.Prefix+prefix, err)
		}
		out = append(out, domain.ObjectInfo{
			Key:          strings.TrimPrefix(attrs.Name, s.loc.Prefix),
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return out, nil
}

// Put uploads body under key.
func (s *GCSStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	w := s.client.Bucket(s.loc.Bucket).Object(s.loc.Prefix + key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.loc.Bucket, s.loc.Prefix+key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("put gs://%s/%s: %w", s.loc.Bucket, s.loc.Prefix+key, err)
	}
	return nil
}

// URI returns gs://bucket/prefix/key.
func (s *GCSStore) URI(key string) string { return s.loc.URI(key) }
