package config

import "time"

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = time.Hour
	defaultMaxSteps  = 10
)

func DefaultConfig() *Config {
	return &Config{
		DataDirectory: "~/.local/share/fetchr",
		Storage: StorageConfig{
			Backend:   StorageSQLite,
			CacheSize: defaultCacheSize,
			CacheTTL:  defaultCacheTTL,
		},
		Provider: ProviderConfig{
			Type:  "ollama",
			Model: "llama3.1:latest",
		},
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		Images: ImagesConfig{
			UseSSL: true,
		},
		Agent: AgentConfig{
			MaxSteps:          defaultMaxSteps,
			RollbackOnFailure: true,
		},
	}
}

func GenerateConfigTemplate() string {
	return `# fetchr configuration
# Location: ~/.config/fetchr/config.toml (override with FETCHR_CONFIG)
# This file uses TOML format: https://toml.io

# Directory holding the chat database
data_directory = "~/.local/share/fetchr"

# Verbose logging, also enabled by FETCHR_DEBUG=1
debug = false

# Optional file that receives a copy of every log line
# log_file = "~/.local/share/fetchr/debug.log"

[storage]
# "sqlite" (chats.db) or "files" (one JSON file per chat)
backend = "sqlite"
cache_size = 1024
cache_ttl = "1h"

[provider]
# ollama, openai, anthropic or groq
type = "ollama"
model = "llama3.1:latest"
# base_url = ""
# max_tokens = 4096
# requests_per_minute = 0

[keys]
# API keys, also read from FETCHR_OPENAI_API_KEY, FETCHR_ANTHROPIC_API_KEY
# and FETCHR_GROQ_API_KEY
# openai = ""
# anthropic = ""
# groq = ""

[ollama]
host = "http://localhost:11434"

[images]
# S3 compatible bucket holding product images (optional)
# endpoint = "s3.amazonaws.com"
# access_key = ""
# secret_key = ""
# bucket = ""
use_ssl = true

[agent]
# system_prompt = "You are a personal shopper."
max_steps = 10
# Undo every turn of a run that fails with a provider error
rollback_on_failure = true
`
}
