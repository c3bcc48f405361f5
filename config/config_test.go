package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", noEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "tradebook.db", cfg.Store.DSN)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Minute, cfg.RefData.TTL)
	assert.Equal(t, 20.0, cfg.RefData.Rate)
	assert.Equal(t, 45*time.Minute, cfg.Auth.RefreshPeriod)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tradebook.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
asset_manager_id: 12
store:
  driver: sqlite
  dsn: /var/lib/tradebook.db
  timeout: 3s
refdata:
  url: https://refdata.example.com
auth:
  token_url: https://auth.example.com/token
  username: ops
`), 0o600))
	t.Setenv("TRADEBOOK_STORE_TIMEOUT", "250ms")
	t.Setenv("TRADEBOOK_NEO4J_URI", "bolt://localhost:7687")

	cfg, err := Load(file, noEnv(t))
	require.NoError(t, err)
	assert.EqualValues(t, 12, cfg.AssetManagerID)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/tradebook.db", cfg.Store.DSN)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.Timeout, "the environment wins over the file")
	assert.Equal(t, "https://refdata.example.com", cfg.RefData.URL)
	assert.Equal(t, "ops", cfg.Auth.Username)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
}

func TestLoad_DotEnv(t *testing.T) {
	env := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(env, []byte("TRADEBOOK_REDIS_ADDR=localhost:6379\nTRADEBOOK_LOG_FORMAT=json\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("TRADEBOOK_REDIS_ADDR")
		os.Unsetenv("TRADEBOOK_LOG_FORMAT")
	})

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":    {"TRADEBOOK_STORE_DRIVER": "mongo"},
		"missing dsn":       {"TRADEBOOK_STORE_DRIVER": "postgres", "TRADEBOOK_STORE_DSN": ""},
		"zero timeout":      {"TRADEBOOK_STORE_TIMEOUT": "0s"},
		"unknown format":    {"TRADEBOOK_LOG_FORMAT": "xml"},
		"auth without user": {"TRADEBOOK_AUTH_TOKEN_URL": "https://auth.example.com/token"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("", noEnv(t))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noEnv(t))
	assert.Error(t, err)
}
