package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"bronze-ingest/internal/domain"
)

var _ domain.ObjectStore = (*LocalStore)(nil)

// LocalStore is an ObjectStore over a local directory. Keys are slash
// separated paths relative to the directory.
type LocalStore struct {
	loc Location
}

// NewLocalStore creates a LocalStore rooted at loc.Dir, creating the directory
// if needed.
func NewLocalStore(loc Location) (*LocalStore, error) {
	if loc.Scheme != SchemeLocal {
		return nil, fmt.Errorf("expected local location, got %q", loc.Scheme)
	}
	if err := os.MkdirAll(loc.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local root %q: %w", loc.Dir, err)
	}
	return &LocalStore{loc: loc}, nil
}

// List returns up to limit files whose key starts with prefix, in lexical
// key order (limit <= 0 lists all).
func (s *LocalStore) List(ctx context.Context, prefix string, limit int) ([]domain.ObjectInfo, error) {
	// Walk from the deepest directory fully named by the prefix.
	start := "."
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		start = path.Clean(prefix[:i+1])
	}

	fsys := os.DirFS(s.loc.Dir)
	var out []domain.ObjectInfo
	err := fs.WalkDir(fsys, start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == start {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			// Prune directories that cannot contain matching keys.
			dirKey := p + "/"
			if p != "." && !strings.HasPrefix(dirKey, prefix) && !strings.HasPrefix(prefix, dirKey) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(p, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, domain.ObjectInfo{Key: p, Size: info.Size(), LastModified: info.ModTime()})
		if limit > 0 && len(out) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.loc.URI(prefix), err)
	}
	return out, nil
}

// Put writes body to key atomically (write to a temp file, then rename).
func (s *LocalStore) Put(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || strings.HasPrefix(path.Clean(key), "..") {
		return fmt.Errorf("invalid key %q", key)
	}

	dest := filepath.Join(s.loc.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", key, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename into %q: %w", key, err)
	}
	return nil
}

// URI returns the filesystem path of key.
func (s *LocalStore) URI(key string) string { return s.loc.URI(key) }
