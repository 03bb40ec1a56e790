// Package config provides configuration for the chat service.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Vector store
	StoreBackend string `yaml:"store_backend"` // sqlite or chroma
	DatabaseURL  string `yaml:"database_url"`
	ChromaURL    string `yaml:"chroma_url"`

	// Ollama providers
	OllamaURL      string        `yaml:"ollama_url"`
	LLMModel       string        `yaml:"llm_model"`
	EmbedModel     string        `yaml:"embed_model"`
	LLMTimeout     time.Duration `yaml:"-"`
	EmbedTimeout   time.Duration `yaml:"-"`
	LLMTimeoutMs   int           `yaml:"llm_timeout_ms"`
	EmbedTimeoutMs int           `yaml:"embed_timeout_ms"`

	// Chat settings
	ChatCollection  string `yaml:"chat_collection"`
	DefaultK        int    `yaml:"default_k"`
	MaxHistoryTurns int    `yaml:"max_history_turns"`

	// Policy
	PolicyFile string `yaml:"policy_file"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load loads configuration from environment variables. If DOCTALK_CONFIG
// points at a YAML file, its values are applied first and the environment
// overrides them.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        8080,
		StoreBackend:    "sqlite",
		DatabaseURL:     "file:doctalk.db?cache=shared&mode=rwc",
		ChromaURL:       "http://localhost:8000",
		OllamaURL:       "http://localhost:11434",
		LLMModel:        "llama3.2",
		EmbedModel:      "nomic-embed-text",
		LLMTimeoutMs:    120000,
		EmbedTimeoutMs:  30000,
		ChatCollection:  "chat_history",
		DefaultK:        4,
		MaxHistoryTurns: 20,
		LogLevel:        "info",
	}

	if path := os.Getenv("DOCTALK_CONFIG"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ChromaURL = getEnv("CHROMA_URL", cfg.ChromaURL)
	cfg.OllamaURL = getEnv("OLLAMA_URL", cfg.OllamaURL)
	cfg.LLMModel = getEnv("OLLAMA_LLM_MODEL", cfg.LLMModel)
	cfg.EmbedModel = getEnv("OLLAMA_EMBED_MODEL", cfg.EmbedModel)
	cfg.LLMTimeoutMs = getEnvInt("LLM_TIMEOUT_MS", cfg.LLMTimeoutMs)
	cfg.EmbedTimeoutMs = getEnvInt("EMBED_TIMEOUT_MS", cfg.EmbedTimeoutMs)
	cfg.ChatCollection = getEnv("CHAT_COLLECTION", cfg.ChatCollection)
	cfg.DefaultK = getEnvInt("DEFAULT_K", cfg.DefaultK)
	cfg.MaxHistoryTurns = getEnvInt("MAX_HISTORY_TURNS", cfg.MaxHistoryTurns)
	cfg.PolicyFile = getEnv("POLICY_FILE", cfg.PolicyFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.LLMTimeout = time.Duration(cfg.LLMTimeoutMs) * time.Millisecond
	cfg.EmbedTimeout = time.Duration(cfg.EmbedTimeoutMs) * time.Millisecond

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
