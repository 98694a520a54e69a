// Package ddl builds the DuckDB statements the ingestion pipeline issues:
// secrets and catalog attachment, schema-bound JSON reads, normalization,
// overwrite and merge writes, and DuckLake file listings.
package ddl

import (
	"fmt"
	"strings"
	"time"
)

// LoadTimestampLayout is the second-precision layout used for the load timestamp.
const LoadTimestampLayout = "2006-01-02 15:04:05"

// S3SecretOptions holds the parameters of an S3 secret. Empty fields are omitted.
type S3SecretOptions struct {
	KeyID    string
	Secret   string
	Endpoint string
	Region   string
	URLStyle string
	Scope    string
	// DisableSSL emits USE_SSL false for plain-HTTP endpoints.
	DisableSSL bool
}

// CreateS3Secret returns a DuckDB statement creating (or replacing) an S3 secret.
func CreateS3Secret(name string, opts S3SecretOptions) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	params := []string{"TYPE S3"}
	params = appendParam(params, "KEY_ID", opts.KeyID)
	params = appendParam(params, "SECRET", opts.Secret)
	params = appendParam(params, "ENDPOINT", opts.Endpoint)
	params = appendParam(params, "REGION", opts.Region)
	params = appendParam(params, "URL_STYLE", opts.URLStyle)
	if opts.DisableSSL {
		params = append(params, "USE_SSL false")
	}
	params = appendParam(params, "SCOPE", opts.Scope)
	return createSecret(name, params), nil
}

// CreateAzureSecret returns a DuckDB statement creating an Azure secret.
// A connection string takes precedence over account name and key.
func CreateAzureSecret(name, accountName, accountKey, connectionString string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	if connectionString != "" {
		return createSecret(name, []string{"TYPE AZURE", "CONNECTION_STRING " + QuoteLiteral(connectionString)}), nil
	}
	if accountName == "" {
		return "", fmt.Errorf("azure account name or connection string is required")
	}
	params := []string{"TYPE AZURE", "ACCOUNT_NAME " + QuoteLiteral(accountName)}
	if accountKey != "" {
		// Account-key auth is expressed through a connection string in the azure extension.
		conn := fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			accountName, accountKey)
		params = []string{"TYPE AZURE", "CONNECTION_STRING " + QuoteLiteral(conn)}
	}
	return createSecret(name, params), nil
}

// CreateGCSSecret returns a DuckDB statement creating a GCS secret from HMAC keys.
func CreateGCSSecret(name, keyID, secret string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	if keyID == "" || secret == "" {
		return "", fmt.Errorf("gcs HMAC key id and secret are required")
	}
	return createSecret(name, []string{
		"TYPE GCS",
		"KEY_ID " + QuoteLiteral(keyID),
		"SECRET " + QuoteLiteral(secret),
	}), nil
}

// DropSecret returns a DuckDB statement: DROP SECRET IF EXISTS "<name>".
func DropSecret(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf("DROP SECRET IF EXISTS %s", QuoteIdentifier(name)), nil
}

func createSecret(name string, params []string) string {
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\t%s\n)", QuoteIdentifier(name), strings.Join(params, ",\n\t"))
}

func appendParam(params []string, key, value string) []string {
	if value == "" {
		return params
	}
	return append(params, key+" "+QuoteLiteral(value))
}

// AttachDuckLake returns a DuckDB statement attaching a DuckLake catalog with a
// SQLite metastore. Both metaDBPath and dataPath are escaped as SQL literals.
func AttachDuckLake(catalogName, metaDBPath, dataPath string) (string, error) {
	if err := ValidateIdentifier(catalogName); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if metaDBPath == "" {
		return "", fmt.Errorf("metastore path is required")
	}
	if dataPath == "" {
		return "", fmt.Errorf("data path is required")
	}
	connStr := QuoteLiteral("ducklake:sqlite:" + metaDBPath)
	// Inlined rows never reach the data path, where existence is probed.
	return fmt.Sprintf("ATTACH IF NOT EXISTS %s AS %s (\n\tDATA_PATH %s,\n\tDATA_INLINING_ROW_LIMIT 0\n)",
		connStr,
		QuoteIdentifier(catalogName),
		QuoteLiteral(dataPath),
	), nil
}

// CreateSchemaIfNotExists returns: CREATE SCHEMA IF NOT EXISTS "<catalog>"."<schema>".
func CreateSchemaIfNotExists(catalog, schema string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s.%s", QuoteIdentifier(catalog), QuoteIdentifier(schema)), nil
}

// ReadJSON returns a statement that loads every JSON document matching glob
// into the temp relation, binding the declared top-level columns and keeping
// only the results column.
//
// columns maps top-level field names to DuckDB type strings, in declaration order.
func ReadJSON(relation, glob string, columns []ColumnType, keep string) (string, error) {
	if err := ValidateIdentifier(relation); err != nil {
		return "", fmt.Errorf("invalid relation name: %w", err)
	}
	if glob == "" {
		return "", fmt.Errorf("source glob is required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	found := false
	entries := make([]string, len(columns))
	for i, c := range columns {
		if c.Name == keep {
			found = true
		}
		entries[i] = QuoteLiteral(c.Name) + ": " + QuoteLiteral(c.Type)
	}
	if !found {
		return "", fmt.Errorf("column %q is not declared", keep)
	}

	return fmt.Sprintf(
		"CREATE OR REPLACE TEMP TABLE %s AS SELECT %s FROM read_json(%s, format = 'auto', columns = {%s})",
		QuoteIdentifier(relation),
		QuoteIdentifier(keep),
		QuoteLiteral(glob),
		strings.Join(entries, ", "),
	), nil
}

// ColumnType pairs a column name with a DuckDB type string.
type ColumnType struct {
	Name string
	Type string
}

// Normalize returns a statement that explodes the array column of source into
// one row per element, projects each element field to its own column, stamps
// loadColumn with loadedAt (second precision) and removes exact duplicates.
//
// An element field named like loadColumn is replaced by the stamp.
func Normalize(target, source, arrayColumn string, fields []string, loadColumn string, loadedAt time.Time) (string, error) {
	if err := ValidateIdentifier(target); err != nil {
		return "", fmt.Errorf("invalid target relation: %w", err)
	}
	if err := ValidateIdentifier(source); err != nil {
		return "", fmt.Errorf("invalid source relation: %w", err)
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("at least one element field is required")
	}

	proj := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if f == loadColumn {
			continue
		}
		proj = append(proj, fmt.Sprintf("struct_extract(e, %s) AS %s", QuoteLiteral(f), QuoteIdentifier(f)))
	}
	proj = append(proj, fmt.Sprintf("TIMESTAMP %s AS %s",
		QuoteLiteral(loadedAt.Format(LoadTimestampLayout)), QuoteIdentifier(loadColumn)))

	return fmt.Sprintf(
		"CREATE OR REPLACE TEMP TABLE %s AS SELECT DISTINCT %s FROM (SELECT unnest(%s) AS e FROM %s)",
		QuoteIdentifier(target),
		strings.Join(proj, ", "),
		QuoteIdentifier(arrayColumn),
		QuoteIdentifier(source),
	), nil
}

// Overwrite returns a statement replacing the destination table with the
// contents of source.
func Overwrite(dest TableRef, source string) (string, error) {
	if err := dest.Validate(); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(source); err != nil {
		return "", fmt.Errorf("invalid source relation: %w", err)
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", dest, QuoteIdentifier(source)), nil
}

// SetPartitionedBy returns a DuckLake statement partitioning the future writes
// of dest by column.
func SetPartitionedBy(dest TableRef, column string) (string, error) {
	if err := dest.Validate(); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid partition column: %w", err)
	}
	return fmt.Sprintf("ALTER TABLE %s SET PARTITIONED BY (%s)", dest, QuoteIdentifier(column)), nil
}

// Merge returns an upsert: destination rows whose key matches a source row get
// every column updated from it; unmatched source rows are inserted;
// unmatched destination rows are left alone.
func Merge(dest TableRef, source, key string, columns []string) (string, error) {
	if err := dest.Validate(); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(source); err != nil {
		return "", fmt.Errorf("invalid source relation: %w", err)
	}
	if err := ValidateIdentifier(key); err != nil {
		return "", fmt.Errorf("invalid match key: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	var sets, names, values []string
	for _, c := range columns {
		q := QuoteIdentifier(c)
		names = append(names, q)
		values = append(values, "raw_table."+q)
		if c != key {
			sets = append(sets, fmt.Sprintf("%s = raw_table.%s", q, q))
		}
	}
	if len(sets) == 0 {
		return "", fmt.Errorf("no columns to update besides match key %q", key)
	}

	k := QuoteIdentifier(key)
	return fmt.Sprintf(`MERGE INTO %s AS bronze_table
USING %s AS raw_table
ON bronze_table.%s = raw_table.%s
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)`,
		dest,
		QuoteIdentifier(source),
		k, k,
		strings.Join(sets, ", "),
		strings.Join(names, ", "),
		strings.Join(values, ", "),
	), nil
}

// DuplicateKeys returns a query counting key values that occur on more than
// one source row and match an existing destination row. A merge with such keys
// would update one destination row from several source rows. Repeated keys
// that match nothing are inserted as they are.
func DuplicateKeys(dest TableRef, source, key string) (string, error) {
	if err := dest.Validate(); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(source); err != nil {
		return "", fmt.Errorf("invalid source relation: %w", err)
	}
	if err := ValidateIdentifier(key); err != nil {
		return "", fmt.Errorf("invalid match key: %w", err)
	}
	k := QuoteIdentifier(key)
	return fmt.Sprintf(`SELECT count(*) FROM (
	SELECT %s FROM %s WHERE %s IS NOT NULL GROUP BY %s HAVING count(*) > 1
) AS incoming
WHERE EXISTS (SELECT 1 FROM %s AS bronze_table WHERE bronze_table.%s = incoming.%s)`,
		k, QuoteIdentifier(source), k, k, dest, k, k), nil
}

// CountRows returns: SELECT count(*) FROM <relation>.
func CountRows(relation string) (string, error) {
	if err := ValidateIdentifier(relation); err != nil {
		return "", fmt.Errorf("invalid relation name: %w", err)
	}
	return "SELECT count(*) FROM " + QuoteIdentifier(relation), nil
}

// CountTableRows returns: SELECT count(*) FROM <catalog>.<schema>.<table>.
func CountTableRows(ref TableRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return "SELECT count(*) FROM " + ref.String(), nil
}

// DescribeRelation returns a DESCRIBE statement for a relation.
func DescribeRelation(relation string) (string, error) {
	if err := ValidateIdentifier(relation); err != nil {
		return "", fmt.Errorf("invalid relation name: %w", err)
	}
	return "DESCRIBE " + QuoteIdentifier(relation), nil
}

// DropRelation returns: DROP TABLE IF EXISTS <relation>.
func DropRelation(relation string) (string, error) {
	if err := ValidateIdentifier(relation); err != nil {
		return "", fmt.Errorf("invalid relation name: %w", err)
	}
	return "DROP TABLE IF EXISTS " + QuoteIdentifier(relation), nil
}

// ListDataFiles returns a query over ducklake_list_files yielding the current
// data file, its size and its delete file (if any) for a DuckLake table.
func ListDataFiles(ref TableRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT data_file, data_file_size_bytes, delete_file FROM ducklake_list_files(%s, %s, schema => %s) ORDER BY data_file",
		QuoteLiteral(ref.Catalog), QuoteLiteral(ref.Table), QuoteLiteral(ref.Schema),
	), nil
}
