package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obahamonde/cloudantic/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "cloudantic-dev", cfg.Store.TableName)
	assert.Equal(t, 3, cfg.Store.MaxRetries)
	assert.Equal(t, 8, cfg.Hydrat.MaxInFlight)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("TABLE_NAME", "content-prod")
	t.Setenv("STORE_MAX_RETRIES", "5")
	t.Setenv("CHAT_NAMESPACE", "support")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.Equal(t, "content-prod", cfg.Store.TableName)
	assert.Equal(t, 5, cfg.Store.MaxRetries)
	assert.Equal(t, "support", cfg.Chat.Namespace)
}

func TestLoadFromFileWithEnvOnTop(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_address: ":7070"
environment: staging
store:
  table_name: content-staging
  base_delay: 200ms
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TABLE_NAME", "content-override")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ServerAddress)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 200*time.Millisecond, cfg.Store.BaseDelay.Std())
	// Environment variables win over the file.
	assert.Equal(t, "content-override", cfg.Store.TableName)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsEmptyTableName(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  table_name: \"\"\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := config.Load()
	assert.Error(t, err)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "SERVER_ADDRESS", "ENVIRONMENT", "TABLE_NAME",
		"AWS_REGION", "DYNAMODB_ENDPOINT", "STORE_MAX_RETRIES",
		"CHAT_NAMESPACE", "HYDRATOR_MAX_IN_FLIGHT",
	} {
		t.Setenv(key, "")
	}
}
