// Package config loads fetchr settings from a TOML file and FETCHR_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"fetchr/objectstore"
	"fetchr/provider"
)

const (
	StorageSQLite = "sqlite"
	StorageFiles  = "files"
)

type StorageConfig struct {
	// Backend is "sqlite" or "files".
	Backend   string        `toml:"backend"`
	CacheSize int           `toml:"cache_size"`
	CacheTTL  time.Duration `toml:"cache_ttl"`
}

type ProviderConfig struct {
	Type              string `toml:"type"`
	Model             string `toml:"model"`
	BaseURL           string `toml:"base_url,omitempty"`
	MaxTokens         int64  `toml:"max_tokens,omitempty"`
	RequestsPerMinute int    `toml:"requests_per_minute,omitempty"`
}

type KeysConfig struct {
	OpenAI    string `toml:"openai,omitempty"`
	Anthropic string `toml:"anthropic,omitempty"`
	Groq      string `toml:"groq,omitempty"`
}

type OllamaConfig struct {
	Host string `toml:"host"`
}

type ImagesConfig struct {
	Endpoint      string `toml:"endpoint,omitempty"`
	AccessKey     string `toml:"access_key,omitempty"`
	SecretKey     string `toml:"secret_key,omitempty"`
	Region        string `toml:"region,omitempty"`
	Bucket        string `toml:"bucket,omitempty"`
	UseSSL        bool   `toml:"use_ssl"`
	PublicBaseURL string `toml:"public_base_url,omitempty"`
}

type AgentConfig struct {
	SystemPrompt      string `toml:"system_prompt,omitempty"`
	MaxSteps          int    `toml:"max_steps"`
	RollbackOnFailure bool   `toml:"rollback_on_failure"`
}

type Config struct {
	DataDirectory string         `toml:"data_directory"`
	Debug         bool           `toml:"debug"`
	LogFile       string         `toml:"log_file,omitempty"`
	Storage       StorageConfig  `toml:"storage"`
	Provider      ProviderConfig `toml:"provider"`
	Keys          KeysConfig     `toml:"keys"`
	Ollama        OllamaConfig   `toml:"ollama"`
	Images        ImagesConfig   `toml:"images"`
	Agent         AgentConfig    `toml:"agent"`
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// ProviderSettings resolves the provider section into a provider.Config,
// picking the API key and base URL that belong to the configured type.
func (c *Config) ProviderSettings() provider.Config {
	typ := provider.MapProviderIDToType(c.Provider.Type)
	out := provider.Config{
		Type:              typ,
		BaseURL:           c.Provider.BaseURL,
		Model:             c.Provider.Model,
		MaxTokens:         c.Provider.MaxTokens,
		RequestsPerMinute: c.Provider.RequestsPerMinute,
	}
	switch typ {
	case provider.ProviderTypeOpenAI:
		out.APIKey = c.Keys.OpenAI
	case provider.ProviderTypeAnthropic:
		out.APIKey = c.Keys.Anthropic
	case provider.ProviderTypeGroq:
		out.APIKey = c.Keys.Groq
	case provider.ProviderTypeOllama:
		if out.BaseURL == "" {
			out.BaseURL = c.Ollama.Host
		}
	}
	return out
}

// ImagesEnabled reports whether an object store is configured for image
// blocks. Without one images are fetched over plain HTTP.
func (c *Config) ImagesEnabled() bool {
	return c.Images.Endpoint != "" && c.Images.Bucket != ""
}

func (c *Config) ObjectStore() objectstore.Config {
	return objectstore.Config{
		Endpoint:      c.Images.Endpoint,
		AccessKey:     c.Images.AccessKey,
		SecretKey:     c.Images.SecretKey,
		Region:        c.Images.Region,
		Bucket:        c.Images.Bucket,
		UseSSL:        c.Images.UseSSL,
		PublicBaseURL: c.Images.PublicBaseURL,
	}
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("FETCHR_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if typ := os.Getenv("FETCHR_PROVIDER"); typ != "" {
		c.Provider.Type = typ
	}
	if model := os.Getenv("FETCHR_MODEL"); model != "" {
		c.Provider.Model = model
	}
	if baseURL := os.Getenv("FETCHR_BASE_URL"); baseURL != "" {
		c.Provider.BaseURL = baseURL
	}
	if host := os.Getenv("FETCHR_OLLAMA_HOST"); host != "" {
		c.Ollama.Host = host
	}
	if key := os.Getenv("FETCHR_OPENAI_API_KEY"); key != "" {
		c.Keys.OpenAI = key
	}
	if key := os.Getenv("FETCHR_ANTHROPIC_API_KEY"); key != "" {
		c.Keys.Anthropic = key
	}
	if key := os.Getenv("FETCHR_GROQ_API_KEY"); key != "" {
		c.Keys.Groq = key
	}
	if CheckDebug() {
		c.Debug = true
	}
}

func CheckDebug() bool {
	debug := os.Getenv("FETCHR_DEBUG")
	if debug == "" {
		return false
	}
	on, err := strconv.ParseBool(debug)
	return err == nil && on
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageSQLite, StorageFiles:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch provider.MapProviderIDToType(c.Provider.Type) {
	case provider.ProviderTypeOllama, provider.ProviderTypeOpenAI,
		provider.ProviderTypeAnthropic, provider.ProviderTypeGroq:
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider.Type)
	}
	if c.Storage.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.Storage.CacheSize)
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative, got %d", c.Agent.MaxSteps)
	}
	return nil
}

// Load is LoadPath for the default config file location.
func Load() (*Config, error) {
	return LoadPath(GetConfigFilePath())
}

// LoadPath reads the config file at path, creating it from the template on
// first run, applies environment overrides and makes sure the data directory
// exists.
func LoadPath(path string) (*Config, error) {
	if !FileExists(path) {
		if err := CreateDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("failed to create config: %w", err)
		}
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}
	return cfg, nil
}
