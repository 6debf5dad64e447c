package engine

import (
	"testing"

	"github.com/veylin/mnemo/internal/llm"
	"github.com/veylin/mnemo/internal/privacy"
	"github.com/veylin/mnemo/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testEngine builds an engine over an in-memory store with the hash embedder
// and no language model.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	db := testDB(t)
	return New(db, nil, NewHashEmbedder(), privacy.NewGate(db), Options{})
}

// testEngineWithLLM is testEngine with a mock model client attached.
func testEngineWithLLM(t *testing.T, mock *llm.MockClient) *Engine {
	t.Helper()
	db := testDB(t)
	return New(db, mock, NewHashEmbedder(), privacy.NewGate(db), Options{})
}
