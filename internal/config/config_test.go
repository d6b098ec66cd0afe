package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ollamachat", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "gemma3:1b", cfg.Ollama.Model)
	assert.Equal(t, 120, cfg.Ollama.ReadIdleTimeoutSec)
	assert.False(t, cfg.Ollama.PersistOnCancel)
	assert.Equal(t, "chat.generation.audit", cfg.RabbitMQ.GenerationAuditQueue)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("OLLAMA_MODEL", "llama3:8b")
	t.Setenv("OLLAMA_PERSIST_ON_CANCEL", "true")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "llama3:8b", cfg.Ollama.Model)
	assert.True(t, cfg.Ollama.PersistOnCancel)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestEnvOverrideIgnoresUnparsable(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "not-a-number")
	t.Setenv("OLLAMA_PERSIST_ON_CANCEL", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.False(t, cfg.Ollama.PersistOnCancel)
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.User = "app"
	cfg.MySQL.Password = "pw"
	cfg.MySQL.Host = "db"
	cfg.MySQL.Port = 3307
	cfg.MySQL.DB = "chat"
	cfg.MySQL.Params = "parseTime=true"

	assert.Equal(t, "app:pw@tcp(db:3307)/chat?parseTime=true", cfg.MySQLDSN())
}
