package cli

import (
	"fmt"
	"os"

	"github.com/veylin/mnemo/internal/config"
	"github.com/veylin/mnemo/internal/engine"
	"github.com/veylin/mnemo/internal/llm"
	"github.com/veylin/mnemo/internal/privacy"
	"github.com/veylin/mnemo/internal/store"
)

// openEngine wires config, store, model client, embedder and privacy gate
// into a ready engine. Callers own the returned DB and must Close it.
func openEngine() (*engine.Engine, *store.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	var llmClient llm.Client
	if cfg.LLM.Provider != "none" && cfg.LLM.Provider != "" {
		llmClient, err = llm.NewClient(cfg.LLM)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: llm not configured (%v), pattern extraction only\n", err)
			llmClient = nil
		}
	}

	eng := engine.New(db, llmClient, pickEmbedder(cfg), privacy.NewGate(db), engine.Options{
		DecayDays:        cfg.Knowledge.DecayDays,
		StaleDays:        cfg.Knowledge.CleanupStaleDays,
		QualityThreshold: cfg.Knowledge.QualityThreshold,
		ContextMaxTokens: cfg.Knowledge.ContextMaxTokens,
		ContextMaxFacts:  cfg.Knowledge.ContextMaxFacts,
	})
	return eng, db, nil
}

// pickEmbedder prefers a running Ollama when the config asks for one,
// falling back to the deterministic hash embedder.
func pickEmbedder(cfg config.Config) engine.Embedder {
	if cfg.Embedding.Provider == "ollama" {
		url := cfg.Embedding.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Embedding.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		if engine.ProbeOllama(url, model) {
			return engine.NewOllamaEmbedder(url, model, 768)
		}
		fmt.Fprintf(os.Stderr, "warning: ollama embedder unreachable, using hash embedder\n")
	}
	return engine.NewHashEmbedder()
}
