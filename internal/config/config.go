package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all mnemo configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider     string `yaml:"provider"` // "anthropic", "ollama", "none"
	Model        string `yaml:"model"`
	AnthropicKey string `yaml:"anthropic_key"`
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "ollama", "hash"
	OllamaURL string `yaml:"ollama_url"`
	Model     string `yaml:"model"`
}

// KnowledgeConfig carries the tunables of the knowledge pipeline.
type KnowledgeConfig struct {
	DecayDays        int     `yaml:"decay_days"`         // confidence decay window
	CleanupStaleDays int     `yaml:"cleanup_stale_days"` // auto-cleanup retention
	QualityThreshold float64 `yaml:"quality_threshold"`  // auto-cleanup quality floor
	ContextMaxTokens int     `yaml:"context_max_tokens"`
	ContextMaxFacts  int     `yaml:"context_max_facts"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38600,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:    "none",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2",
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			OllamaURL: "http://localhost:11434",
			Model:     "nomic-embed-text",
		},
		Knowledge: KnowledgeConfig{
			DecayDays:        90,
			CleanupStaleDays: 180,
			QualityThreshold: 0.2,
			ContextMaxTokens: 300,
			ContextMaxFacts:  15,
		},
	}
}

// DefaultConfigPath returns ~/.mnemo/config.yaml.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemo", "config.yaml")
}

// Load reads the YAML config at path, layering it over Default().
// A missing file is not an error. Environment variables win last:
// ANTHROPIC_API_KEY selects the anthropic provider, MNEMO_DB overrides
// the database path.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.AnthropicKey = key
	}
	if dbPath := os.Getenv("MNEMO_DB"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
