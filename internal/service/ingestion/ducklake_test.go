package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bronze-ingest/internal/config"
	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/engine"
	"bronze-ingest/internal/schema"
	"bronze-ingest/internal/storage"
)

// newLakeOrchestrator attaches a DuckLake catalog over a local root and
// returns an orchestrator writing to it. Skipped when the DuckDB extensions
// cannot be installed (offline environments).
func newLakeOrchestrator(t *testing.T) (*Orchestrator, *sql.DB, string) {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if err := engine.InstallExtensions(ctx, db); err != nil {
		t.Skipf("DuckDB extensions unavailable: %v", err)
	}

	root := t.TempDir()
	loc, err := storage.ParseRoot(root)
	require.NoError(t, err)
	store, err := storage.NewLocalStore(loc)
	require.NoError(t, err)

	layout := storage.NewLayout("bronze", "")
	cfg := &config.Config{
		LakeRoot:     root,
		LakeCatalog:  "lake",
		BronzeSchema: "bronze",
		MetaDBPath:   filepath.Join(root, "meta.sqlite"),
	}
	require.NoError(t, engine.Setup(ctx, db, cfg, store.URI(layout.DataPath())))

	now := time.Date(2024, 3, 9, 7, 5, 3, 0, time.UTC)
	orch := NewOrchestrator(db, store, schema.NewLoader(testSchemas), newMemRuns(), nil, Config{
		Catalog:     "lake",
		Layout:      layout,
		Retry:       fastRetry(2),
		Concurrency: 1,
		Clock:       func() time.Time { return now },
	}, discardLogger())
	return orch, db, root
}

func writeLakeRaw(t *testing.T, root, table, body string) {
	t.Helper()
	dir := filepath.Join(root, "raw_data", table)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page1.json"), []byte(body), 0o644))
}

func TestDuckLake_SecondRunMerges(t *testing.T) {
	orch, db, root := newLakeOrchestrator(t)
	ctx := context.Background()

	writeLakeRaw(t, root, "films", filmsPage1)
	first := orch.RunTable(ctx, films)
	require.NoError(t, first.Err)
	assert.Equal(t, domain.VerdictEmpty, first.Verdict)

	entries, err := os.ReadDir(filepath.Join(root, "bronze_data", "bronze", "films"))
	require.NoError(t, err, "committed files land under the destination prefix")
	assert.NotEmpty(t, entries)

	writeLakeRaw(t, root, "films", `{"count": 2, "results": [
  {"episode_id": 4, "title": "A New Hope", "director": "G. Lucas"},
  {"episode_id": 6, "title": "Return of the Jedi", "director": "Richard Marquand"}
]}`)
	second := orch.RunTable(ctx, films)
	require.NoError(t, second.Err)
	assert.Equal(t, domain.VerdictPopulated, second.Verdict)
	assert.Equal(t, int64(3), second.RowsWritten)
	assert.Nil(t, second.Warning)

	rows, err := db.QueryContext(ctx, `SELECT episode_id, director FROM lake.bronze.films ORDER BY episode_id`)
	require.NoError(t, err)
	defer rows.Close()
	got := map[int64]string{}
	for rows.Next() {
		var id int64
		var director string
		require.NoError(t, rows.Scan(&id, &director))
		got[id] = director
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[int64]string{4: "G. Lucas", 5: "Irvin Kershner", 6: "Richard Marquand"}, got,
		"rows absent from the second input survive")

	data, err := os.ReadFile(filepath.Join(root, "bronze_data", "bronze", "films", "_manifest", "manifest.json"))
	require.NoError(t, err)
	var m domain.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, int64(3), m.RowCount)
	assert.NotEmpty(t, m.Files)
}

func TestDuckLake_PartitionedTable(t *testing.T) {
	orch, db, root := newLakeOrchestrator(t)
	ctx := context.Background()
	spec := domain.TableSpec{Name: "planets", MatchKey: "name", PartitionHint: "climate"}

	writeLakeRaw(t, root, "planets", `{"count": 1, "results": [{"name": "Tatooine", "climate": "arid"}]}`)
	first := orch.RunTable(ctx, spec)
	require.NoError(t, first.Err)
	assert.Equal(t, domain.VerdictEmpty, first.Verdict)

	writeLakeRaw(t, root, "planets", `{"count": 1, "results": [{"name": "Hoth", "climate": "frozen"}]}`)
	second := orch.RunTable(ctx, spec)
	require.NoError(t, second.Err)
	assert.Equal(t, domain.VerdictPopulated, second.Verdict)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM lake.bronze.planets`).Scan(&n))
	assert.Equal(t, 2, n)
}
