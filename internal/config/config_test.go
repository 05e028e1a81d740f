package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoint, cfg.Capture.Endpoint)
	assert.Equal(t, 1000, cfg.Capture.PageSize)
	assert.Equal(t, 60, cfg.Capture.TimeoutSecs)
	assert.Equal(t, "sqlite", cfg.Library.Driver)
	assert.Equal(t, "dist/library/history_snapshot.parquet", cfg.Library.SnapshotLocation)
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auction-ledger.yaml")
	body := `
capture:
  page_size: 250
  max_pages: 5
library:
  snapshot_location: /tmp/snap.parquet
archive:
  enabled: true
  bucket_url: file:///tmp/archive
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	t.Setenv("AUCTION_PAGE_SIZE", "100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Capture.PageSize, "env overrides file")
	assert.Equal(t, 5, cfg.Capture.MaxPages)
	assert.Equal(t, "/tmp/snap.parquet", cfg.Library.SnapshotLocation)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 60, cfg.Capture.TimeoutSecs)
}

func TestLoad_InvalidEnvNumberKeepsValue(t *testing.T) {
	t.Setenv("AUCTION_PAGE_SIZE", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Capture.PageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero page size", func(c *Config) { c.Capture.PageSize = 0 }},
		{"unknown driver", func(c *Config) { c.Library.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Library.Driver = "postgres" }},
		{"no snapshot", func(c *Config) { c.Library.SnapshotLocation = "" }},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
