package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bronze-ingest/internal/domain"
)

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{name: "five_field", schedule: "*/5 * * * *"},
		{name: "descriptor", schedule: "@hourly"},
		{name: "every", schedule: "@every 30m"},
		{name: "invalid", schedule: "every now and then", wantErr: true},
		{name: "empty", schedule: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewScheduler(nil, tt.schedule, discardLogger())
			err := s.Start(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.KindValidation, domain.ErrorKind(err))
				return
			}
			require.NoError(t, err)
			t.Cleanup(s.Stop)
			assert.Len(t, s.cron.Entries(), 1)
		})
	}
}

func TestScheduler_RunOnceSkipsWhileBatchRunning(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, staticRegistry{films}, nil)
	svc.running.Store(true)

	s := NewScheduler(svc, "@hourly", discardLogger())
	// A busy service is reported as a skipped tick; reaching the
	// orchestrator would panic on the nil pointer.
	assert.NotPanics(t, func() { s.runOnce(context.Background()) })
}

func TestScheduler_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	env.writeRaw(t, "films", "page1.json", filmsPage1)
	svc := NewService(env.orchestrator(env.store, nil), staticRegistry{films}, env.runs)

	s := NewScheduler(svc, "@hourly", discardLogger())
	s.runOnce(context.Background())

	runs, err := svc.ListRuns(context.Background(), domain.IngestionRunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusDone, runs[0].Status)
}
