package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fetchr/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestTemplateMatchesDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, GenerateConfigTemplate()))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "partial file keeps defaults",
			body: "[provider]\ntype = \"anthropic\"\nmodel = \"claude-sonnet-4-5\"\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "anthropic", cfg.Provider.Type)
				assert.Equal(t, "claude-sonnet-4-5", cfg.Provider.Model)
				assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
				assert.Equal(t, time.Hour, cfg.Storage.CacheTTL)
				assert.True(t, cfg.Agent.RollbackOnFailure, "failed runs roll back unless turned off")
			},
		},
		{
			name: "durations and nested tables",
			body: "[storage]\nbackend = \"files\"\ncache_ttl = \"90s\"\n[agent]\nmax_steps = 3\nrollback_on_failure = false\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StorageFiles, cfg.Storage.Backend)
				assert.Equal(t, 90*time.Second, cfg.Storage.CacheTTL)
				assert.Equal(t, 3, cfg.Agent.MaxSteps)
				assert.False(t, cfg.Agent.RollbackOnFailure)
			},
		},
		{
			name:    "unknown key",
			body:    "colour = \"blue\"\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			body:    "[provider\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadCreatesConfigAndAppliesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fetchr", "config.toml")
	dataDir := filepath.Join(dir, "data")

	t.Setenv("FETCHR_CONFIG", path)
	t.Setenv("FETCHR_DATA_DIR", dataDir)
	t.Setenv("FETCHR_PROVIDER", "claude")
	t.Setenv("FETCHR_ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("FETCHR_DEBUG", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, FileExists(path), "first run writes the template")
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Agent.RollbackOnFailure)
	assert.Equal(t, dataDir, cfg.DataDir())

	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	ps := cfg.ProviderSettings()
	assert.Equal(t, provider.ProviderTypeAnthropic, ps.Type)
	assert.Equal(t, "sk-ant-test", ps.APIKey)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"storage backend", "[storage]\nbackend = \"redis\"\n"},
		{"provider type", "[provider]\ntype = \"bard\"\n"},
		{"cache size", "[storage]\ncache_size = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FETCHR_CONFIG", writeConfig(t, tt.body))
			t.Setenv("FETCHR_DATA_DIR", t.TempDir())
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestProviderSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ollama.Host = "http://gpu-box:11434"
	cfg.Keys = KeysConfig{OpenAI: "sk-openai", Groq: "gsk-groq"}

	ps := cfg.ProviderSettings()
	assert.Equal(t, provider.ProviderTypeOllama, ps.Type)
	assert.Equal(t, "http://gpu-box:11434", ps.BaseURL)
	assert.Empty(t, ps.APIKey)

	cfg.Provider.Type = "groq"
	cfg.Provider.RequestsPerMinute = 30
	ps = cfg.ProviderSettings()
	assert.Equal(t, "gsk-groq", ps.APIKey)
	assert.Empty(t, ps.BaseURL)
	assert.Equal(t, 30, ps.RequestsPerMinute)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/shopper")
	t.Setenv("FETCHR_TEST_DIR", "/srv/fetchr")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", "/home/shopper"},
		{"~/data", "/home/shopper/data"},
		{"$FETCHR_TEST_DIR/chats", "/srv/fetchr/chats"},
		{"/tmp//x/", "/tmp/x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	logger, err := NewLogger(true, path)
	require.NoError(t, err)
	logger.Infow("Chat loaded", "chatID", "c-1")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Chat loaded")
	assert.Contains(t, string(data), "c-1")
}
