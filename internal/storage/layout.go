package storage

import "path"

// Top-level directories under a storage root.
const (
	RawDir    = "raw_data"
	BronzeDir = "bronze_data"
)

// DefaultRawGlob matches the raw documents of a table.
const DefaultRawGlob = "*.json"

// Layout maps tables to keys under a storage root.
//
// Raw documents live under raw_data/{table}/. The versioned tables live
// under bronze_data/, where the table store nests each table's files as
// {schema}/{table}/.
type Layout struct {
	Schema  string
	RawGlob string
}

// NewLayout returns the layout for tables in schema, matching raw files with
// glob (DefaultRawGlob when empty).
func NewLayout(schema, glob string) Layout {
	if glob == "" {
		glob = DefaultRawGlob
	}
	return Layout{Schema: schema, RawGlob: glob}
}

// RawPrefix is the listing prefix of a table's raw documents.
func (l Layout) RawPrefix(table string) string {
	return RawDir + "/" + table + "/"
}

// RawPattern is the key pattern of a table's raw documents, relative to the root.
func (l Layout) RawPattern(table string) string {
	return path.Join(RawDir, table, l.RawGlob)
}

// DataPath is the key prefix under which the table store keeps its files.
func (l Layout) DataPath() string {
	return BronzeDir + "/"
}

// DestinationPrefix is the listing prefix of a table's committed files.
func (l Layout) DestinationPrefix(table string) string {
	return BronzeDir + "/" + l.Schema + "/" + table + "/"
}

// ManifestKey is the key of a table's manifest document.
func (l Layout) ManifestKey(table string) string {
	return l.DestinationPrefix(table) + "_manifest/manifest.json"
}
