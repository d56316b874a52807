package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, CancelKeep, cfg.Workflow.CancelPolicy)
	assert.False(t, cfg.Workflow.ReserveOnApproval)
	assert.Equal(t, 30*time.Second, cfg.StoreTimeout())
	assert.Equal(t, 168*time.Hour, cfg.LoanDuration())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Storage, cfg.Storage)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assetflow.yaml")
	body := `
tenant: acme
storage:
  driver: memory
workflow:
  cancel_policy: release_reservations
  reserve_on_approval: true
  overdue_grace_period: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Tenant)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, CancelReleaseReservations, cfg.Workflow.CancelPolicy)
	assert.True(t, cfg.Workflow.ReserveOnApproval)
	assert.Equal(t, 2*time.Hour, cfg.OverdueGrace())
	// Unset keys keep their defaults.
	assert.Equal(t, "./blobdata", cfg.Blob.FSRoot)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unterminated"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("storage and tenant", func(t *testing.T) {
		t.Setenv("ASSETFLOW_STORAGE_DRIVER", "postgres")
		t.Setenv("ASSETFLOW_POSTGRES_DSN", "postgres://db/assets")
		t.Setenv("ASSETFLOW_TENANT", "org-9")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
		assert.Equal(t, "postgres://db/assets", cfg.Storage.PostgresDSN)
		assert.Equal(t, "org-9", cfg.Tenant)
	})

	t.Run("s3 blob", func(t *testing.T) {
		t.Setenv("ASSETFLOW_BLOB_DRIVER", "s3")
		t.Setenv("ASSETFLOW_BLOB_S3_BUCKET", "receipts")
		t.Setenv("ASSETFLOW_BLOB_S3_PATH_STYLE", "TRUE")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "s3", cfg.Blob.Driver)
		assert.Equal(t, "receipts", cfg.Blob.S3.Bucket)
		assert.True(t, cfg.Blob.S3.PathStyle)
	})

	t.Run("workflow policy", func(t *testing.T) {
		t.Setenv("ASSETFLOW_CANCEL_POLICY", CancelReleaseReservations)
		t.Setenv("ASSETFLOW_RESERVE_ON_APPROVAL", "1")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, CancelReleaseReservations, cfg.Workflow.CancelPolicy)
		assert.True(t, cfg.Workflow.ReserveOnApproval)
	})

	t.Run("env beats file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "assetflow.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))
		t.Setenv("ASSETFLOW_LOG_LEVEL", "debug")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"storage driver":  func(c *Config) { c.Storage.Driver = "mongo" },
		"blob driver":     func(c *Config) { c.Blob.Driver = "gcs" },
		"s3 bucket":       func(c *Config) { c.Blob.Driver = "s3" },
		"cancel policy":   func(c *Config) { c.Workflow.CancelPolicy = "refund" },
		"retries":         func(c *Config) { c.Workflow.MaxConflictRetries = -1 },
		"duration format": func(c *Config) { c.Storage.Timeout = "soon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	cfg := DefaultConfig()
	cfg.Blob.Driver = ""
	assert.NoError(t, cfg.Validate(), "empty blob driver disables receipts and exports")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "assetflow.yaml")
	cfg := DefaultConfig()
	cfg.Tenant = "round-trip"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "round-trip", loaded.Tenant)
}
