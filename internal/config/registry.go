package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
)

// Registry is the ordered list of tables to ingest and their merge keys.
type Registry struct {
	Tables []domain.TableSpec `yaml:"tables"`
}

// LoadRegistry reads and validates a registry YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read table registry %s: %w", path, err)
	}
	r, err := ParseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("table registry %s: %w", path, err)
	}
	return r, nil
}

// ParseRegistry decodes and validates a registry document. Unknown keys are
// rejected.
func ParseRegistry(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Registry
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.ErrValidation("decode registry: %v", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks for at least one table, unique identifier-safe names and
// identifier-safe match keys.
func (r *Registry) Validate() error {
	if len(r.Tables) == 0 {
		return domain.ErrValidation("registry lists no tables")
	}
	seen := make(map[string]bool, len(r.Tables))
	for i, t := range r.Tables {
		if err := ddl.ValidateIdentifier(t.Name); err != nil {
			return domain.ErrValidation("table #%d: invalid name %q: %v", i+1, t.Name, err)
		}
		if seen[t.Name] {
			return domain.ErrValidation("table %q is listed twice", t.Name)
		}
		seen[t.Name] = true
		if t.MatchKey != "" {
			if err := ddl.ValidateIdentifier(t.MatchKey); err != nil {
				return domain.ErrValidation("table %q: invalid match_key %q: %v", t.Name, t.MatchKey, err)
			}
		}
	}
	return nil
}

// Lookup returns the spec of the named table.
func (r *Registry) Lookup(name string) (domain.TableSpec, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return domain.TableSpec{}, false
}

// Select returns the specs of the named tables in registry order, or all
// tables when names is empty.
func (r *Registry) Select(names ...string) ([]domain.TableSpec, error) {
	if len(names) == 0 {
		out := make([]domain.TableSpec, len(r.Tables))
		copy(out, r.Tables)
		return out, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.Lookup(n); !ok {
			return nil, domain.ErrNotFound("table %q is not in the registry", n)
		}
		want[n] = true
	}
	out := make([]domain.TableSpec, 0, len(want))
	for _, t := range r.Tables {
		if want[t.Name] {
			out = append(out, t)
		}
	}
	return out, nil
}
