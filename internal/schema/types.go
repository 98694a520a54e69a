// Package schema parses table schema documents (Spark StructType JSON) and
// translates them into DuckDB column types for schema-bound JSON reads.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
)

// Kind names of complex types. Primitive types use their Spark name as Kind.
const (
	KindStruct  = "struct"
	KindArray   = "array"
	KindMap     = "map"
	KindDecimal = "decimal"
)

var decimalRe = regexp.MustCompile(`^decimal\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)

// DataType is a node of a schema type tree.
type DataType struct {
	Kind string

	// decimal
	Precision int
	Scale     int

	// struct
	Fields []Field

	// array
	ElementType  *DataType
	ContainsNull bool

	// map
	KeyType           *DataType
	ValueType         *DataType
	ValueContainsNull bool
}

// Field is a named member of a struct type.
type Field struct {
	Name     string          `json:"name"`
	Type     *DataType       `json:"type"`
	Nullable bool            `json:"nullable"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts both encodings of a type: a bare string for
// primitives ("string", "decimal(10,2)") and an object for struct, array and map.
func (t *DataType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return t.parsePrimitive(name)
	}

	var raw struct {
		Type              string    `json:"type"`
		Fields            []Field   `json:"fields"`
		ElementType       *DataType `json:"elementType"`
		ContainsNull      bool      `json:"containsNull"`
		KeyType           *DataType `json:"keyType"`
		ValueType         *DataType `json:"valueType"`
		ValueContainsNull bool      `json:"valueContainsNull"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode type: %w", err)
	}

	switch raw.Type {
	case KindStruct:
		*t = DataType{Kind: KindStruct, Fields: raw.Fields}
	case KindArray:
		if raw.ElementType == nil {
			return fmt.Errorf("array type has no elementType")
		}
		*t = DataType{Kind: KindArray, ElementType: raw.ElementType, ContainsNull: raw.ContainsNull}
	case KindMap:
		if raw.KeyType == nil || raw.ValueType == nil {
			return fmt.Errorf("map type needs keyType and valueType")
		}
		*t = DataType{Kind: KindMap, KeyType: raw.KeyType, ValueType: raw.ValueType, ValueContainsNull: raw.ValueContainsNull}
	case "":
		return fmt.Errorf("type object has no \"type\" member")
	default:
		return fmt.Errorf("unsupported complex type %q", raw.Type)
	}
	return nil
}

func (t *DataType) parsePrimitive(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if m := decimalRe.FindStringSubmatch(name); m != nil {
		p, _ := strconv.Atoi(m[1])
		s, _ := strconv.Atoi(m[2])
		if p < 1 || p > 38 || s > p {
			return fmt.Errorf("invalid decimal precision/scale in %q", name)
		}
		*t = DataType{Kind: KindDecimal, Precision: p, Scale: s}
		return nil
	}
	if name == KindDecimal {
		// Spark's unparameterized decimal.
		*t = DataType{Kind: KindDecimal, Precision: 10, Scale: 0}
		return nil
	}
	if _, ok := primitiveTypes[name]; !ok {
		return fmt.Errorf("unsupported type %q", name)
	}
	*t = DataType{Kind: name}
	return nil
}

var primitiveTypes = map[string]string{
	"string":        "VARCHAR",
	"long":          "BIGINT",
	"integer":       "INTEGER",
	"short":         "SMALLINT",
	"byte":          "TINYINT",
	"double":        "DOUBLE",
	"float":         "FLOAT",
	"boolean":       "BOOLEAN",
	"timestamp":     "TIMESTAMP",
	"timestamp_ntz": "TIMESTAMP",
	"date":          "DATE",
	"binary":        "BLOB",
	"null":          "VARCHAR",
}

// DuckDBType renders the DuckDB type string for t.
func (t *DataType) DuckDBType() (string, error) {
	if t == nil {
		return "", fmt.Errorf("missing type")
	}
	switch t.Kind {
	case KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale), nil
	case KindArray:
		elem, err := t.ElementType.DuckDBType()
		if err != nil {
			return "", fmt.Errorf("array element: %w", err)
		}
		return elem + "[]", nil
	case KindMap:
		k, err := t.KeyType.DuckDBType()
		if err != nil {
			return "", fmt.Errorf("map key: %w", err)
		}
		v, err := t.ValueType.DuckDBType()
		if err != nil {
			return "", fmt.Errorf("map value: %w", err)
		}
		return fmt.Sprintf("MAP(%s, %s)", k, v), nil
	case KindStruct:
		if len(t.Fields) == 0 {
			return "", fmt.Errorf("struct has no fields")
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			ft, err := f.Type.DuckDBType()
			if err != nil {
				return "", fmt.Errorf("field %q: %w", f.Name, err)
			}
			parts[i] = ddl.QuoteIdentifier(f.Name) + " " + ft
		}
		return "STRUCT(" + strings.Join(parts, ", ") + ")", nil
	}
	if s, ok := primitiveTypes[t.Kind]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unsupported type %q", t.Kind)
}

// Schema is the structural description of one table's raw documents.
type Schema struct {
	Table  string
	Fields []Field
}

// Field returns the top-level field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks that every type is translatable and that the document
// carries a results field holding an array of records.
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return domain.ErrValidation("schema for %q has no fields", s.Table)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return domain.ErrValidation("schema for %q has a field without a name", s.Table)
		}
		if seen[f.Name] {
			return domain.ErrValidation("schema for %q declares field %q twice", s.Table, f.Name)
		}
		seen[f.Name] = true
		if _, err := f.Type.DuckDBType(); err != nil {
			return domain.ErrValidation("schema for %q: field %q: %v", s.Table, f.Name, err)
		}
	}

	results, ok := s.Field(domain.ResultsField)
	if !ok {
		return domain.ErrValidation("schema for %q has no %q field", s.Table, domain.ResultsField)
	}
	if results.Type.Kind != KindArray || results.Type.ElementType.Kind != KindStruct {
		return domain.ErrValidation("schema for %q: %q must be an array of records", s.Table, domain.ResultsField)
	}
	return nil
}

// Columns returns the top-level fields as DuckDB column bindings, in
// declaration order.
func (s *Schema) Columns() ([]ddl.ColumnType, error) {
	cols := make([]ddl.ColumnType, len(s.Fields))
	for i, f := range s.Fields {
		t, err := f.Type.DuckDBType()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		cols[i] = ddl.ColumnType{Name: f.Name, Type: t}
	}
	return cols, nil
}

// ElementFields returns the fields of one results element. Validate must
// have succeeded.
func (s *Schema) ElementFields() ([]domain.Column, error) {
	results, ok := s.Field(domain.ResultsField)
	if !ok || results.Type == nil || results.Type.Kind != KindArray || results.Type.ElementType.Kind != KindStruct {
		return nil, domain.ErrValidation("schema for %q has no %q records", s.Table, domain.ResultsField)
	}
	elem := results.Type.ElementType
	cols := make([]domain.Column, len(elem.Fields))
	for i, f := range elem.Fields {
		t, err := f.Type.DuckDBType()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		cols[i] = domain.Column{Name: f.Name, Type: t}
	}
	return cols, nil
}
