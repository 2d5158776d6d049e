package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/quokkaworks/mnemo/pkg/config"
	"github.com/quokkaworks/mnemo/pkg/memory"
	"github.com/quokkaworks/mnemo/pkg/providers"
)

const appName = "mnemo"

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	if p := os.Getenv("MNEMO_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemo", "config.json")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// buildManager wires config, store, and provider clients into the memory
// manager. The caller owns the returned manager's Close.
func buildManager(cfg *config.Config, log zerolog.Logger) (*memory.Manager, error) {
	store, err := memory.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	embedder := providers.NewEmbeddingClient(
		cfg.Embedding.APIKey,
		cfg.Embedding.APIBase,
		cfg.Embedding.Model,
		time.Duration(cfg.Embedding.TimeoutMS)*time.Millisecond,
	)
	generator := providers.NewGenerationClient(
		cfg.Provider.APIKey,
		cfg.Provider.APIBase,
		cfg.Provider.Model,
		cfg.Provider.MaxTokens,
		time.Duration(cfg.Provider.TimeoutMS)*time.Millisecond,
	)

	return memory.NewManager(memory.Config{
		ShortTermMaxSize:       cfg.Memory.ShortTermMaxSize,
		SummarizeEveryMessages: cfg.Memory.SummarizeEveryMessages,
		SummarizeEvery:         time.Duration(cfg.Memory.SummarizeEveryMinutes) * time.Minute,
		MinChunkImportance:     cfg.Memory.MinChunkImportance,
		LongTermImportance:     cfg.Memory.LongTermImportance,
		SimilarityThreshold:    cfg.Memory.SimilarityThreshold,
		QueueBuffer:            cfg.Memory.EnrichmentQueueCapacity,
	}, store, embedder, generator, log), nil
}
