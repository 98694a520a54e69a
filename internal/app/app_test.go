package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bronze-ingest/internal/config"
)

func strPtr(s string) *string { return &s }

func TestStorageOptions(t *testing.T) {
	cfg := &config.Config{
		S3KeyID:          strPtr("key"),
		S3Secret:         strPtr("secret"),
		S3Endpoint:       strPtr("http://minio:9000"),
		S3Region:         strPtr("eu-west-1"),
		S3URLStyle:       "path",
		GCSKeyFile:       "/etc/gcs.json",
		AzureAccountName: "acct",
		StorageRPS:       5,
	}

	opts := storageOptions(cfg)
	assert.Equal(t, "key", opts.S3KeyID)
	assert.Equal(t, "secret", opts.S3Secret)
	assert.Equal(t, "http://minio:9000", opts.S3Endpoint)
	assert.Equal(t, "eu-west-1", opts.S3Region)
	assert.Equal(t, "path", opts.S3URLStyle)
	assert.Equal(t, "/etc/gcs.json", opts.GCSKeyFile)
	assert.Equal(t, "acct", opts.AzureAccountName)
	assert.Equal(t, 5.0, opts.RequestsPerSecond)

	empty := storageOptions(&config.Config{})
	assert.Empty(t, empty.S3KeyID)
	assert.Empty(t, empty.S3Endpoint)
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no_root", func(t *testing.T) {
		_, err := New(ctx, Deps{Cfg: &config.Config{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LAKE_ROOT")
	})

	t.Run("missing_registry", func(t *testing.T) {
		_, err := New(ctx, Deps{Cfg: &config.Config{
			LakeRoot:   t.TempDir(),
			TablesFile: filepath.Join(t.TempDir(), "tables.yaml"),
		}})
		require.Error(t, err)
	})
}
