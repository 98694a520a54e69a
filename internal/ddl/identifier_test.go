package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "simple", input: "films"},
		{name: "underscore_prefix", input: "_tmp"},
		{name: "with_digits", input: "stage_films2"},
		{name: "empty", input: "", wantErr: "name is required"},
		{name: "leading_digit", input: "1films", wantErr: "must match"},
		{name: "hyphen", input: "my-table", wantErr: "must match"},
		{name: "space", input: "my table", wantErr: "must match"},
		{name: "quote", input: `a"b`, wantErr: "must match"},
		{name: "too_long", input: strings.Repeat("a", 129), wantErr: "at most 128"},
		{name: "max_length", input: strings.Repeat("a", 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"films"`, QuoteIdentifier("films"))
	assert.Equal(t, `"rotation period"`, QuoteIdentifier("rotation period"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'s3://bucket/x'`, QuoteLiteral("s3://bucket/x"))
	assert.Equal(t, `'o''brien'`, QuoteLiteral("o'brien"))
	assert.Equal(t, `''`, QuoteLiteral(""))
}

func TestTableRef(t *testing.T) {
	ref := TableRef{Catalog: "lake", Schema: "main", Table: "films"}
	assert.NoError(t, ref.Validate())
	assert.Equal(t, `"lake"."main"."films"`, ref.String())

	bad := TableRef{Catalog: "lake", Schema: "bad-schema", Table: "films"}
	assert.ErrorContains(t, bad.Validate(), "invalid schema name")
}

func TestRelationNames(t *testing.T) {
	assert.Equal(t, "raw_films", RawRelation("films"))
	assert.Equal(t, "stage_films", StageRelation("films"))
}
