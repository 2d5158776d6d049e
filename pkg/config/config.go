package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Workspace string          `json:"workspace" env:"MNEMO_WORKSPACE"`
	Provider  ProviderConfig  `json:"provider"`
	Embedding EmbeddingConfig `json:"embedding"`
	Memory    MemoryConfig    `json:"memory"`
	LogLevel  string          `json:"log_level" env:"MNEMO_LOG_LEVEL"`
}

// ProviderConfig points at the OpenAI-compatible generation endpoint used
// for importance scoring, fact extraction, and summarization.
type ProviderConfig struct {
	APIKey    string `json:"api_key" env:"MNEMO_PROVIDER_API_KEY"`
	APIBase   string `json:"api_base" env:"MNEMO_PROVIDER_API_BASE"`
	Model     string `json:"model" env:"MNEMO_PROVIDER_MODEL"`
	MaxTokens int    `json:"max_tokens" env:"MNEMO_PROVIDER_MAX_TOKENS"`
	TimeoutMS int    `json:"timeout_ms" env:"MNEMO_PROVIDER_TIMEOUT_MS"`
}

// EmbeddingConfig points at the embedding endpoint. Empty credentials mean
// the embedding client deterministically reports unavailable.
type EmbeddingConfig struct {
	APIKey    string `json:"api_key" env:"MNEMO_EMBEDDING_API_KEY"`
	APIBase   string `json:"api_base" env:"MNEMO_EMBEDDING_API_BASE"`
	Model     string `json:"model" env:"MNEMO_EMBEDDING_MODEL"`
	TimeoutMS int    `json:"timeout_ms" env:"MNEMO_EMBEDDING_TIMEOUT_MS"`
}

type MemoryConfig struct {
	ShortTermMaxSize        int     `json:"short_term_max_size" env:"MNEMO_MEMORY_SHORT_TERM_MAX_SIZE"`
	SummarizeEveryMessages  int     `json:"summarize_every_messages" env:"MNEMO_MEMORY_SUMMARIZE_EVERY_MESSAGES"`
	SummarizeEveryMinutes   int     `json:"summarize_every_minutes" env:"MNEMO_MEMORY_SUMMARIZE_EVERY_MINUTES"`
	MinChunkImportance      int     `json:"min_chunk_importance" env:"MNEMO_MEMORY_MIN_CHUNK_IMPORTANCE"`
	LongTermImportance      int     `json:"long_term_importance" env:"MNEMO_MEMORY_LONG_TERM_IMPORTANCE"`
	SimilarityThreshold     float64 `json:"similarity_threshold" env:"MNEMO_MEMORY_SIMILARITY_THRESHOLD"`
	CleanupCron             string  `json:"cleanup_cron" env:"MNEMO_MEMORY_CLEANUP_CRON"`
	SessionMaxIdleHours     int     `json:"session_max_idle_hours" env:"MNEMO_MEMORY_SESSION_MAX_IDLE_HOURS"`
	EnrichmentQueueCapacity int     `json:"enrichment_queue_capacity" env:"MNEMO_MEMORY_ENRICHMENT_QUEUE_CAPACITY"`
}

func DefaultConfig() *Config {
	return &Config{
		Workspace: "~/.mnemo",
		Provider: ProviderConfig{
			APIBase:   "https://openrouter.ai/api/v1",
			Model:     "openai/gpt-5.2",
			MaxTokens: 1024,
			TimeoutMS: 8000,
		},
		Embedding: EmbeddingConfig{
			APIBase:   "https://openrouter.ai/api/v1",
			Model:     "text-embedding-3-small",
			TimeoutMS: 8000,
		},
		Memory: MemoryConfig{
			ShortTermMaxSize:        10,
			SummarizeEveryMessages:  10,
			SummarizeEveryMinutes:   30,
			MinChunkImportance:      3,
			LongTermImportance:      8,
			SimilarityThreshold:     0.7,
			CleanupCron:             "0 * * * *",
			SessionMaxIdleHours:     24,
			EnrichmentQueueCapacity: 64,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads path (missing file is fine) and applies MNEMO_* env
// overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// WorkspacePath expands the configured workspace to an absolute directory.
func (c *Config) WorkspacePath() string {
	return expandHome(c.Workspace)
}

// DBPath is the SQLite context database location inside the workspace.
func (c *Config) DBPath() string {
	return filepath.Join(c.WorkspacePath(), "state", "contexts.db")
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
