package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
)

// Loader resolves table names to schema documents named {table}.json.
type Loader struct {
	fsys fs.FS
}

// NewLoader creates a Loader reading documents from fsys.
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// Load reads, parses and validates the schema document for table.
func (l *Loader) Load(ctx context.Context, table string) (*Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ddl.ValidateIdentifier(table); err != nil {
		return nil, domain.ErrValidation("invalid table name %q: %v", table, err)
	}

	data, err := fs.ReadFile(l.fsys, path.Clean(table+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.SchemaNotFoundError{Table: table}
		}
		return nil, fmt.Errorf("read schema for %q: %w", table, err)
	}

	s, err := Parse(table, data)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse decodes a StructType document.
func Parse(table string, data []byte) (*Schema, error) {
	var root DataType
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, domain.ErrValidation("parse schema for %q: %v", table, err)
	}
	if root.Kind != KindStruct {
		return nil, domain.ErrValidation("schema for %q must be a struct type, got %q", table, root.Kind)
	}
	return &Schema{Table: table, Fields: root.Fields}, nil
}
