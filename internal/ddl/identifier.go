package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxIdentifierLen is the maximum length allowed for a SQL identifier.
const maxIdentifierLen = 128

// ValidateIdentifier checks that name is a safe SQL identifier:
//   - Non-empty
//   - At most 128 characters
//   - Matches [a-zA-Z_][a-zA-Z0-9_]*
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
//
// Always quotes unconditionally. Field names coming from schema documents are
// quoted this way rather than validated, since JSON keys may contain spaces.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them (standard SQL).
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// TableRef is a fully qualified catalog.schema.table reference.
type TableRef struct {
	Catalog string
	Schema  string
	Table   string
}

// Validate checks every part of the reference.
func (r TableRef) Validate() error {
	if err := ValidateIdentifier(r.Catalog); err != nil {
		return fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(r.Schema); err != nil {
		return fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(r.Table); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}
	return nil
}

// String renders the quoted three-part name.
func (r TableRef) String() string {
	return QuoteIdentifier(r.Catalog) + "." + QuoteIdentifier(r.Schema) + "." + QuoteIdentifier(r.Table)
}

// RawRelation returns the temp relation name holding a table's raw records.
func RawRelation(table string) string { return "raw_" + table }

// StageRelation returns the temp relation name holding a table's normalized records.
func StageRelation(table string) string { return "stage_" + table }
