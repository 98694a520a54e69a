package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bronze-ingest/internal/config"
	"bronze-ingest/internal/db"
	"bronze-ingest/internal/db/repository"
	"bronze-ingest/internal/domain"
)

// isolateEnv points the CLI at an empty environment and a missing dotenv file.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LAKE_ROOT", "ENV", "RUNS_DB_PATH", "LOG_FORMAT", "LOG_LEVEL", "TABLES_FILE"} {
		t.Setenv(k, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "bronze version dev (commit: none)\n", out)

	out, err = execute(t, "version", "-o", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v["version"])
}

func TestRootRejectsUnknownOutputFormat(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "version", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestArgumentValidation(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "version_extra", args: []string{"version", "extra"}, wantErr: `unknown command "extra"`},
		{name: "runs_extra", args: []string{"runs", "extra"}, wantErr: `unknown command "extra"`},
		{name: "serve_extra", args: []string{"serve", "extra"}, wantErr: `unknown command "extra"`},
		{name: "manifest_no_table", args: []string{"manifest"}, wantErr: "accepts 1 arg(s)"},
		{name: "manifest_two_tables", args: []string{"manifest", "films", "people"}, wantErr: "accepts 1 arg(s)"},
		{name: "runs_zero_limit", args: []string{"runs", "--limit", "0"}, wantErr: "--limit must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_RequiresLakeRoot(t *testing.T) {
	isolateEnv(t)

	for _, args := range [][]string{{"run"}, {"run", "films"}, {"manifest", "films"}} {
		_, err := execute(t, args...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LAKE_ROOT")
	}
}

func TestRuns(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "runs.sqlite")
	t.Setenv("RUNS_DB_PATH", path)

	ledger, err := db.OpenLedger(context.Background(), path)
	require.NoError(t, err)
	repo := repository.NewIngestionRunRepo(ledger)
	started := time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC)
	for i, table := range []string{"films", "people", "films"} {
		require.NoError(t, repo.Create(context.Background(), &domain.IngestionRun{
			ID: domain.NewID(), BatchID: "b1", Table: table, Stage: domain.StageLoadSchema,
			Status: domain.RunStatusRunning, StartedAt: started.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, ledger.Close())

	t.Run("json_filtered", func(t *testing.T) {
		out, err := execute(t, "runs", "--table", "films", "-o", "json")
		require.NoError(t, err)
		var runs []domain.IngestionRun
		require.NoError(t, json.Unmarshal([]byte(out), &runs))
		require.Len(t, runs, 2)
		assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	})

	t.Run("table_limited", func(t *testing.T) {
		out, err := execute(t, "runs", "--limit", "1")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "ID"))
		assert.Contains(t, lines[1], "films")
		assert.Contains(t, lines[1], "2024-03-09T07:02:00Z")
	})
}

func TestRuns_NoLedgerYet(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "runs.sqlite")
	t.Setenv("RUNS_DB_PATH", path)

	out, err := execute(t, "runs", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
	assert.NoFileExists(t, path)
}

func TestPrintBatch(t *testing.T) {
	started := time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC)
	batch := &domain.BatchResult{ID: "b1", Runs: []*domain.TableRun{
		{Table: "films", Status: domain.RunStatusDone, Stage: domain.StageDone, Verdict: domain.VerdictEmpty,
			RowsWritten: 6, StartedAt: started, FinishedAt: started.Add(1500 * time.Millisecond)},
		{Table: "people", Status: domain.RunStatusFailed, Stage: domain.StageFailed, FailedStage: domain.StageLoadSchema,
			Err: &domain.SchemaNotFoundError{Table: "people"}, StartedAt: started, FinishedAt: started},
	}}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, printBatch(cmd, batch))

	text := out.String()
	assert.Contains(t, text, "TABLE")
	assert.Contains(t, text, "1.5s")
	assert.Contains(t, text, "LOAD_SCHEMA")
	assert.Contains(t, text, `schema not found for table "people"`)
	assert.Contains(t, text, "batch b1: 2 tables, 1 failed")
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, "json", domain.ErrConflict("an ingestion batch is already running"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, domain.KindConflict, body["kind"])

	buf.Reset()
	printError(&buf, "table", errors.New("boom"))
	assert.Equal(t, "Error: boom\n", buf.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", "table", "films")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "films", entry["table"])
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
