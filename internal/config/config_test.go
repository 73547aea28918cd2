package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "MODEL_PROVIDER", "MODEL_TIMEOUT", "HTTP_ADDR", "MCP_ENABLED", "SITES_EXCHANGE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, ProviderGenAI, cfg.Model.Provider)
	assert.Equal(t, 60*time.Second, cfg.Model.Timeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.MCPEnabled)
	assert.Equal(t, "terralens.sites", cfg.RabbitMQ.Exchange)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("PG_DSN", "postgres://localhost/terralens")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MODEL_TIMEOUT", "15s")
	t.Setenv("MCP_ENABLED", "true")
	t.Setenv("NOTIFY_COOLDOWN", "not-a-duration")

	cfg := Load()
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/terralens", cfg.Store.DatabaseURL)
	assert.Equal(t, 15*time.Second, cfg.Model.Timeout)
	assert.True(t, cfg.MCPEnabled)
	assert.Equal(t, 30*time.Minute, cfg.Notify.Cooldown)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Store: StoreConfig{Driver: DriverPostgres},
		Model: ModelConfig{Provider: ProviderOpenAI},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg.Auth.JWTSecret = "secret"
	cfg.Store.DatabaseURL = "postgres://db"
	cfg.Model.OpenAIAPIKey = "sk-test"
	require.NoError(t, cfg.Validate())

	cfg.Store.Driver = "mongo"
	require.Error(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TERRALENS_DOTENV_PROBE=loaded\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("TERRALENS_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("TERRALENS_DOTENV_PROBE"))

	path, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".env"), path)
	assert.Equal(t, "loaded", os.Getenv("TERRALENS_DOTENV_PROBE"))
}
