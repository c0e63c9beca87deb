package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"HAGGLE_PORT", "HAGGLE_API_KEY", "HAGGLE_DATA_DIR", "HAGGLE_LOG_LEVEL", "REDIS_URL", "HAGGLE_CONFIG"} {
		t.Setenv(k, "")
	}
}

// --- Schema Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 18790, cfg.Server.Port)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Primary.Model)
	assert.Equal(t, 0.6, cfg.Decision.ConfidenceThreshold)
	assert.Equal(t, 8*time.Second, cfg.Decision.TierTimeoutDuration())
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTimeoutDuration())
	assert.Equal(t, 10*time.Minute, cfg.Session.RetentionDuration())
	assert.Equal(t, 6*time.Hour, cfg.Resolver.CacheTTLDuration())
}

func TestConfig_CamelCaseJSON(t *testing.T) {
	jsonStr := `{
		"server": {"port": 9090, "apiKey": "k"},
		"llm": {"primary": {"provider": "openai", "model": "gpt-4o-mini", "maxTokens": 2048}},
		"decision": {"tierTimeout": 3, "confidenceThreshold": 0.7},
		"session": {"idleTimeout": 60, "maxMessages": 10},
		"resolver": {"categoryFile": "/etc/haggle/categories.yaml"}
	}`
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(jsonStr), &cfg))

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "k", cfg.Server.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Primary.Model)
	assert.Equal(t, 2048, cfg.LLM.Primary.MaxTokens)
	assert.Equal(t, 3*time.Second, cfg.Decision.TierTimeoutDuration())
	assert.Equal(t, 10, cfg.Session.MaxMessages)
	assert.Equal(t, "/etc/haggle/categories.yaml", cfg.Resolver.CategoryFile)
}

func TestProviderConfig_Enabled(t *testing.T) {
	assert.False(t, ProviderConfig{Provider: "gemini"}.Enabled())
	assert.True(t, ProviderConfig{Model: "gemini-2.5-flash"}.Enabled())
}

// --- Loader Tests ---

func TestLoad_FileNotExist(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ValidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"llm": {"primary": {"model": "deepseek/deepseek-chat", "maxTokens": 256}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek/deepseek-chat", cfg.LLM.Primary.Model)
	assert.Equal(t, 256, cfg.LLM.Primary.MaxTokens)
	// Defaults should be preserved for unset fields
	assert.Equal(t, 0.4, cfg.LLM.Primary.Temperature)
	assert.Equal(t, 18790, cfg.Server.Port)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  port: 7000\nsession:\n  idleTimeout: 120\nredis:\n  url: redis://localhost:6379/0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Session.IdleTimeoutDuration())
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 40, cfg.Session.MaxMessages)
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[server]\nport = 7100\n\n[log]\nlevel = \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidJSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{invalid json}"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	// Should return defaults on error
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HAGGLE_PORT", "9999")
	t.Setenv("HAGGLE_API_KEY", "secret")
	t.Setenv("REDIS_URL", "redis://cache:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
}

func TestSave_And_Load_RoundTrip(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"config.json", "config.yaml", "config.toml"} {
		path := filepath.Join(t.TempDir(), "sub", name)

		cfg := DefaultConfig()
		cfg.LLM.Primary.Model = "openai/gpt-4o"
		cfg.Server.APIKey = "test-key"

		require.NoError(t, Save(cfg, path), name)

		loaded, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, "openai/gpt-4o", loaded.LLM.Primary.Model, name)
		assert.Equal(t, "test-key", loaded.Server.APIKey, name)
		assert.Equal(t, cfg.Session, loaded.Session, name)
	}
}

func TestSave_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.json")
	require.NoError(t, Save(DefaultConfig(), path))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestGetConfigPath_Env(t *testing.T) {
	t.Setenv("HAGGLE_CONFIG", "/tmp/haggle.yaml")
	assert.Equal(t, "/tmp/haggle.yaml", GetConfigPath())
}

func TestGetDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/haggle"
	assert.Equal(t, "/var/lib/haggle", cfg.GetDataDir())
}
