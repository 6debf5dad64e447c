package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 38600 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "none" {
		t.Errorf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("Embedding.Provider = %q", cfg.Embedding.Provider)
	}
	if cfg.Knowledge.DecayDays != 90 || cfg.Knowledge.CleanupStaleDays != 180 {
		t.Errorf("Knowledge = %+v", cfg.Knowledge)
	}
	if cfg.Knowledge.ContextMaxTokens != 300 || cfg.Knowledge.ContextMaxFacts != 15 {
		t.Errorf("Knowledge = %+v", cfg.Knowledge)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MNEMO_DB", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 38600 {
		t.Errorf("Port = %d, want defaults on missing file", cfg.Server.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MNEMO_DB", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`server:
  port: 9999
llm:
  provider: ollama
  ollama_model: mistral
knowledge:
  decay_days: 30
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.OllamaModel != "mistral" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Knowledge.DecayDays != 30 {
		t.Errorf("DecayDays = %d, want 30", cfg.Knowledge.DecayDays)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q", cfg.Server.Bind)
	}
	if cfg.Knowledge.ContextMaxTokens != 300 {
		t.Errorf("ContextMaxTokens = %d", cfg.Knowledge.ContextMaxTokens)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: a: map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("MNEMO_DB", "/tmp/other.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.AnthropicKey != "sk-test" {
		t.Errorf("LLM = %+v, want anthropic provider from env", cfg.LLM)
	}
	if cfg.Database.Path != "/tmp/other.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.ListenAddr(); got != "127.0.0.1:38600" {
		t.Errorf("ListenAddr = %q", got)
	}
}
