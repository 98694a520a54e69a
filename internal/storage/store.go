// Package storage provides the object-store clients the ingestion pipeline
// uses to list raw and destination prefixes and to upload manifests, plus
// the conventional key layout under a storage root.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"bronze-ingest/internal/domain"
)

// Scheme identifies the storage backend of a root.
type Scheme string

// Supported root schemes.
const (
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
	SchemeAzure Scheme = "az"
	SchemeLocal Scheme = "file"
)

// Options carries backend credentials and client settings.
type Options struct {
	S3KeyID    string
	S3Secret   string
	S3Endpoint string
	S3Region   string
	S3URLStyle string

	GCSKeyFile string

	AzureAccountName      string
	AzureAccountKey       string
	AzureConnectionString string

	// RequestsPerSecond caps storage calls; 0 disables limiting.
	RequestsPerSecond float64
}

// Location is a parsed storage root.
type Location struct {
	Scheme  Scheme
	Bucket  string // bucket or container; empty for local roots
	Prefix  string // key prefix under the bucket, "" or ending in "/"
	Account string // azure storage account, when present in the URI
	Dir     string // local directory for file roots
	base    string // engine-readable URI of the root, ending in "/"
}

// URI returns the engine-readable location of key under the root.
func (l Location) URI(key string) string {
	if l.Scheme == SchemeLocal {
		p := filepath.Join(l.Dir, filepath.FromSlash(key))
		if strings.HasSuffix(key, "/") {
			p += string(filepath.Separator)
		}
		return p
	}
	return l.base + key
}

// ParseRoot parses a storage root: s3://bucket/prefix, gs://bucket/prefix,
// az://container/prefix, abfss://container@account.dfs.core.windows.net/prefix,
// https://account.blob.core.windows.net/container/prefix, file:///dir or a
// plain filesystem path.
func ParseRoot(root string) (Location, error) {
	if root == "" {
		return Location{}, fmt.Errorf("storage root is required")
	}
	if !strings.Contains(root, "://") {
		return localLocation(root)
	}

	u, err := url.Parse(root)
	if err != nil {
		return Location{}, fmt.Errorf("parse storage root %q: %w", root, err)
	}

	var loc Location
	switch u.Scheme {
	case "s3":
		loc = Location{Scheme: SchemeS3, Bucket: u.Host, Prefix: normalizePrefix(u.Path)}
		loc.base = "s3://" + loc.Bucket + "/" + loc.Prefix
	case "gs", "gcs":
		loc = Location{Scheme: SchemeGCS, Bucket: u.Host, Prefix: normalizePrefix(u.Path)}
		loc.base = "gs://" + loc.Bucket + "/" + loc.Prefix
	case "az", "azure":
		loc = Location{Scheme: SchemeAzure, Bucket: u.Host, Prefix: normalizePrefix(u.Path)}
		loc.base = "az://" + loc.Bucket + "/" + loc.Prefix
	case "abfss":
		// abfss://container@account.dfs.core.windows.net/path
		if u.User == nil {
			return Location{}, fmt.Errorf("abfss root %q missing container@account component", root)
		}
		loc = Location{
			Scheme:  SchemeAzure,
			Bucket:  u.User.Username(),
			Prefix:  normalizePrefix(u.Path),
			Account: strings.SplitN(u.Host, ".", 2)[0],
		}
		loc.base = "abfss://" + loc.Bucket + "@" + u.Host + "/" + loc.Prefix
	case "https":
		// https://account.blob.core.windows.net/container/path
		if !strings.Contains(u.Host, ".blob.core.windows.net") {
			return Location{}, fmt.Errorf("unrecognized Azure HTTPS host %q in root %q", u.Host, root)
		}
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		loc = Location{Scheme: SchemeAzure, Bucket: parts[0], Account: strings.SplitN(u.Host, ".", 2)[0]}
		if len(parts) > 1 {
			loc.Prefix = normalizePrefix(parts[1])
		}
		loc.base = "az://" + loc.Bucket + "/" + loc.Prefix
	case "file":
		return localLocation(u.Path)
	default:
		return Location{}, fmt.Errorf("unsupported storage scheme %q in %q", u.Scheme, root)
	}

	if loc.Bucket == "" {
		return Location{}, fmt.Errorf("empty bucket in storage root %q", root)
	}
	return loc, nil
}

func localLocation(dir string) (Location, error) {
	if dir == "" {
		return Location{}, fmt.Errorf("empty local storage root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Location{}, fmt.Errorf("resolve local root %q: %w", dir, err)
	}
	return Location{Scheme: SchemeLocal, Dir: abs}, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Open returns the ObjectStore for root, wrapped with a rate limiter when
// opts.RequestsPerSecond is positive.
func Open(ctx context.Context, root string, opts Options) (domain.ObjectStore, error) {
	loc, err := ParseRoot(root)
	if err != nil {
		return nil, err
	}

	var store domain.ObjectStore
	switch loc.Scheme {
	case SchemeS3:
		store, err = NewS3Store(loc, opts)
	case SchemeGCS:
		store, err = NewGCSStore(ctx, loc, opts)
	case SchemeAzure:
		store, err = NewAzureStore(loc, opts)
	case SchemeLocal:
		store, err = NewLocalStore(loc)
	default:
		err = fmt.Errorf("unsupported storage scheme %q", loc.Scheme)
	}
	if err != nil {
		return nil, err
	}

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		store = NewRateLimited(store, rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst))
	}
	return store, nil
}
