package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConfig(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeFile(t, "config.toml", `
[indices]
crash_template = "crashes_%Y%m%d"

[bulk]
items_per_bulk_load = 100
flush_interval = "2s"

[correlations]
recognized_platforms = ["Linux"]

[transaction]
backoff_delays = ["100ms", "1s"]

[index_cache]
redis_addr = "localhost:6379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "crashes_%Y%m%d", cfg.Indices.CrashTemplate)
	assert.Equal(t, "socorro_correlations_%Y%m", cfg.Indices.CorrelationsTemplate, "untouched default")
	assert.Equal(t, 100, cfg.Bulk.ItemsPerBulkLoad)
	assert.Equal(t, 512, cfg.Bulk.MaximumQueueSize)
	assert.Equal(t, 2*time.Second, cfg.Bulk.FlushInterval.Std())
	assert.Equal(t, []string{"Linux"}, cfg.Correlations.RecognizedPlatforms)
	assert.Equal(t, []domain.Duration{
		domain.Duration(100 * time.Millisecond),
		domain.Duration(time.Second),
	}, cfg.Transaction.BackoffDelays)
	assert.Equal(t, "localhost:6379", cfg.IndexCache.RedisAddr)
	assert.Equal(t, "crashstore:indices", cfg.IndexCache.RedisKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[bulk\nitems_per_bulk_load = 1"},
		{"bad duration", "[scan]\nkeep_alive = \"forever\""},
		{"wrong type", "[bulk]\nitems_per_bulk_load = \"many\""},
		{"fails validation", "[bulk]\nitems_per_bulk_load = 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.toml", tt.content))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := domain.DefaultConfig()
	cfg.Store.Path = "/var/lib/crashstore"
	cfg.Bulk.FlushInterval = domain.Duration(5 * time.Second)

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
