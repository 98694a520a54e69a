package engine_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bronze-ingest/internal/config"
	"bronze-ingest/internal/engine"
)

func openDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestIsCatalogAttached(t *testing.T) {
	db := openDuckDB(t)
	ctx := context.Background()

	ok, err := engine.IsCatalogAttached(ctx, db, "memory")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.IsCatalogAttached(ctx, db, "lake")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateStorageSecret_LocalRootIsNoop(t *testing.T) {
	db := openDuckDB(t)
	cfg := &config.Config{LakeRoot: t.TempDir()}

	require.NoError(t, engine.CreateStorageSecret(context.Background(), db, cfg))

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM duckdb_secrets()").Scan(&n))
	assert.Zero(t, n)
}

func TestCreateStorageSecret_BadRoot(t *testing.T) {
	db := openDuckDB(t)
	err := engine.CreateStorageSecret(context.Background(), db, &config.Config{LakeRoot: "ftp://x/y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage scheme")
}

// TestSetup_DuckLake attaches a DuckLake catalog over a local data path.
// Skipped when the extensions cannot be installed (offline environments).
func TestSetup_DuckLake(t *testing.T) {
	db := openDuckDB(t)
	ctx := context.Background()

	if err := engine.InstallExtensions(ctx, db); err != nil {
		t.Skipf("DuckDB extensions unavailable: %v", err)
	}

	root := t.TempDir()
	cfg := &config.Config{
		LakeRoot:     root,
		LakeCatalog:  "lake",
		BronzeSchema: "bronze",
		MetaDBPath:   filepath.Join(root, "meta.sqlite"),
	}
	dataPath := filepath.Join(root, "bronze_data") + string(filepath.Separator)

	require.NoError(t, engine.Setup(ctx, db, cfg, dataPath))
	// Second call finds the catalog attached.
	require.NoError(t, engine.Setup(ctx, db, cfg, dataPath))

	ok, err := engine.IsCatalogAttached(ctx, db, "lake")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = db.ExecContext(ctx, `CREATE TABLE lake.bronze.films AS SELECT 1 AS episode_id, 'A New Hope' AS title`)
	require.NoError(t, err)

	var files int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT count(*) FROM ducklake_list_files('lake', 'films', schema => 'bronze')").Scan(&files))
	assert.Equal(t, 1, files)

	_, err = os.Stat(filepath.Join(root, "bronze_data", "bronze", "films"))
	assert.NoError(t, err, "table files are nested under {schema}/{table}")
}

func TestCreateS3Secret(t *testing.T) {
	db := openDuckDB(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "INSTALL httpfs; LOAD httpfs;"); err != nil {
		t.Skipf("httpfs unavailable: %v", err)
	}

	cfg := &config.Config{
		LakeRoot:   "s3://star-wars-etl-dev",
		S3KeyID:    strPtr("AKIA"),
		S3Secret:   strPtr("secret"),
		S3Endpoint: strPtr("http://localhost:9000"),
	}
	require.NoError(t, engine.CreateStorageSecret(ctx, db, cfg))

	var name, scope string
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT name, scope[1] FROM duckdb_secrets() WHERE name = ?", engine.SecretName).Scan(&name, &scope))
	assert.Equal(t, engine.SecretName, name)
	assert.Equal(t, "s3://star-wars-etl-dev", scope)

	require.NoError(t, engine.DropSecret(ctx, db, engine.SecretName))
}
