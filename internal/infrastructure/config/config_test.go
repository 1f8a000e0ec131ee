package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mollie:
  api_key: test_key
roster:
  path: donors.csv
subscription:
  description: "Donatie"
  webhook_url: "https://example.org/hook"
storage:
  database_path: runs.db
observability:
  logging:
    level: debug
    format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test_key", cfg.Mollie.APIKey)
	assert.Equal(t, "donors.csv", cfg.Roster.Path)
	assert.Equal(t, "Donatie", cfg.Subscription.Description)
	assert.Equal(t, "runs.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("MOLLIE_API_KEY", "live_secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "mollie:\n  api_key: ${MOLLIE_API_KEY}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "live_secret", cfg.Mollie.APIKey)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MOLLIE_API_KEY", "test-token")
	t.Setenv("DONOR_ROSTER_PATH", "donors.csv")
	t.Setenv("DONORSYNC_DB_PATH", "test.db")

	cfg := LoadFromEnv()
	assert.Equal(t, "test-token", cfg.Mollie.APIKey)
	assert.Equal(t, "donors.csv", cfg.Roster.Path)
	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	os.Unsetenv("DONORSYNC_DB_PATH")
	os.Unsetenv("SUBSCRIPTION_INTERVAL")

	cfg := LoadFromEnv()
	assert.Equal(t, "donorsync.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "1 month", cfg.Subscription.Interval)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
}

func TestLoadOrEnvWithPath_FallbackToEnv(t *testing.T) {
	t.Setenv("MOLLIE_API_KEY", "env-token")

	cfg := LoadOrEnvWithPath(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Equal(t, "env-token", cfg.Mollie.APIKey)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mollie.api_key")
	assert.Contains(t, err.Error(), "roster.path")

	cfg.Mollie.APIKey = "key"
	cfg.Roster.Path = "donors.csv"
	assert.NoError(t, cfg.Validate())
}
