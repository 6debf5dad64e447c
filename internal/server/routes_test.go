package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veylin/mnemo/internal/engine"
	"github.com/veylin/mnemo/internal/privacy"
	"github.com/veylin/mnemo/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(db, nil, engine.NewHashEmbedder(), privacy.NewGate(db), engine.Options{})
	return New(eng, "test")
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t)

	rec, body := doJSON(t, srv, "GET", "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v", body["version"])
	}
}

func TestHandleQuickExtract(t *testing.T) {
	srv := testServer(t)

	rec, body := doJSON(t, srv, "POST", "/api/extract/quick",
		`{"text": "i am a teacher and i love coffee", "conversation_id": "conv-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	if body["new"].(float64) != 2 {
		t.Errorf("new = %v, want 2", body["new"])
	}

	// Same text again merges instead of duplicating.
	rec, body = doJSON(t, srv, "POST", "/api/extract/quick",
		`{"text": "i am a teacher and i love coffee", "conversation_id": "conv-2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["merged"].(float64) != 2 {
		t.Errorf("merged = %v, want 2", body["merged"])
	}
}

func TestHandleExtractValidation(t *testing.T) {
	srv := testServer(t)

	rec, _ := doJSON(t, srv, "POST", "/api/extract", `{"text": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, srv, "POST", "/api/extract", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	srv := testServer(t)

	rec, _ := doJSON(t, srv, "GET", "/api/search", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", rec.Code)
	}

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "my goal is run a marathon"}`)

	rec, body := doJSON(t, srv, "GET", "/api/search?q=marathon&min=0.1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	if body["count"].(float64) < 1 {
		t.Errorf("count = %v, want a hit for the stored goal", body["count"])
	}
}

func TestHandleHybridSearch(t *testing.T) {
	srv := testServer(t)

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "i love coffee"}`)

	rec, body := doJSON(t, srv, "GET", "/api/search/hybrid?q=coffee", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	if body["count"].(float64) < 1 {
		t.Errorf("count = %v", body["count"])
	}
	results := body["results"].([]any)
	top := results[0].(map[string]any)
	for _, field := range []string{"semanticScore", "keywordScore", "finalScore"} {
		if _, ok := top[field]; !ok {
			t.Errorf("result missing %s: %v", field, top)
		}
	}

	// Explicit weights are accepted on the query string.
	rec, _ = doJSON(t, srv, "GET", "/api/search/hybrid?q=coffee&semantic=0.9&keyword=0.1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("weighted search: status = %d", rec.Code)
	}
}

func TestHandleContext(t *testing.T) {
	srv := testServer(t)

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "i am a teacher"}`)

	rec, body := doJSON(t, srv, "GET", "/api/context", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	text, _ := body["context"].(string)
	if !strings.Contains(text, "teacher") {
		t.Errorf("context = %q, want the stored job in it", text)
	}
}

func TestHandleListAndDeleteFacts(t *testing.T) {
	srv := testServer(t)

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "i am a teacher and i love coffee"}`)

	rec, body := doJSON(t, srv, "GET", "/api/facts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}

	rec, body = doJSON(t, srv, "GET", "/api/facts?category="+store.CategoryPersonalInfo, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("filtered count = %v, want 1", body["count"])
	}

	rec, _ = doJSON(t, srv, "DELETE", "/api/facts", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete without confirm: status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, srv, "DELETE", "/api/facts?confirm=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed delete: status = %d", rec.Code)
	}
	_, body = doJSON(t, srv, "GET", "/api/facts", "")
	if body["count"].(float64) != 0 {
		t.Errorf("count after delete = %v, want 0", body["count"])
	}
}

func TestHandleFeedback(t *testing.T) {
	srv := testServer(t)

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "i am a teacher"}`)
	_, body := doJSON(t, srv, "GET", "/api/facts", "")
	facts := body["facts"].([]any)
	if len(facts) != 1 {
		t.Fatalf("facts = %v", facts)
	}
	id := facts[0].(map[string]any)["id"].(string)

	rec, _ := doJSON(t, srv, "POST", "/api/facts/"+id+"/feedback", `{"feedback": "meh"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid feedback: status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, srv, "POST", "/api/facts/"+id+"/feedback", `{"feedback": "confirmed"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleRelatedMissingEmbedding(t *testing.T) {
	srv := testServer(t)

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "i am a teacher"}`)
	_, body := doJSON(t, srv, "GET", "/api/facts", "")
	id := body["facts"].([]any)[0].(map[string]any)["id"].(string)

	// Embeddings are generated by the background worker, which is not
	// running here, so the fact has no vector yet.
	rec, _ := doJSON(t, srv, "GET", "/api/facts/"+id+"/related", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleConflicts(t *testing.T) {
	srv := testServer(t)

	rec, body := doJSON(t, srv, "GET", "/api/conflicts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0 on a clean store", body["count"])
	}

	rec, body = doJSON(t, srv, "POST", "/api/conflicts/auto", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("auto resolve: status = %d", rec.Code)
	}
	if body["resolved"].(float64) != 0 {
		t.Errorf("resolved = %v, want 0", body["resolved"])
	}
}

func TestHandleResolveConflictGroup(t *testing.T) {
	srv := testServer(t)
	ctx := context.Background()

	a := &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Istanbul", Confidence: 0.85, Source: store.SourceUserTold}
	b := &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Ankara", Confidence: 0.4, Source: store.SourceInferred}
	for _, f := range []*store.Fact{a, b} {
		if err := srv.db.InsertFact(ctx, f); err != nil {
			t.Fatalf("InsertFact: %v", err)
		}
	}

	rec, _ := doJSON(t, srv, "POST", "/api/conflicts/resolve",
		`{"kind": "differentValues", "fact_ids": ["`+a.ID+`", "`+b.ID+`"], "policy": "keepHighestQuality"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	loser, err := srv.db.GetFact(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if loser.IsActive {
		t.Error("losing fact should be deactivated")
	}
}

func TestHandleResolveConflictNotFound(t *testing.T) {
	srv := testServer(t)

	rec, _ := doJSON(t, srv, "POST", "/api/conflicts/resolve",
		`{"fact_ids": ["nope", "also-nope"], "policy": "keepBoth"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, srv, "POST", "/api/conflicts/resolve", `{"policy": "keepBoth"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing ids: status = %d, want 400", rec.Code)
	}
}

func TestHandleQuality(t *testing.T) {
	srv := testServer(t)

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "i am a teacher"}`)

	rec, body := doJSON(t, srv, "GET", "/api/quality", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["facts"].(float64) != 1 {
		t.Errorf("facts = %v, want 1", body["facts"])
	}
	if body["average"].(float64) <= 0 {
		t.Errorf("average = %v, want positive", body["average"])
	}
}

func TestHandleMaintenance(t *testing.T) {
	srv := testServer(t)

	doJSON(t, srv, "POST", "/api/extract/quick", `{"text": "i am a teacher"}`)

	rec, _ := doJSON(t, srv, "POST", "/api/maintenance/decay", "")
	if rec.Code != http.StatusOK {
		t.Errorf("decay: status = %d", rec.Code)
	}
	rec, body := doJSON(t, srv, "POST", "/api/maintenance/cleanup", "")
	if rec.Code != http.StatusOK {
		t.Errorf("cleanup: status = %d", rec.Code)
	}
	if body["lowQuality"].(float64) != 0 {
		t.Errorf("lowQuality = %v, want 0 for a fresh fact", body["lowQuality"])
	}
}

func TestHandlePrivacyRoundTrip(t *testing.T) {
	srv := testServer(t)

	rec, body := doJSON(t, srv, "GET", "/api/privacy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["learning_enabled"] != true {
		t.Errorf("learning_enabled = %v", body["learning_enabled"])
	}
	if len(body["allowed_categories"].([]any)) != 6 {
		t.Errorf("allowed_categories = %v", body["allowed_categories"])
	}

	rec, _ = doJSON(t, srv, "POST", "/api/privacy/preset", `{"preset": "strict"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("preset: status = %d", rec.Code)
	}
	_, body = doJSON(t, srv, "GET", "/api/privacy", "")
	if len(body["allowed_categories"].([]any)) != 2 {
		t.Errorf("strict categories = %v", body["allowed_categories"])
	}

	rec, _ = doJSON(t, srv, "POST", "/api/privacy/preset", `{"preset": "nonsense"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad preset: status = %d, want 400", rec.Code)
	}

	rec, body = doJSON(t, srv, "POST", "/api/privacy/learning", `{"enabled": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("learning: status = %d", rec.Code)
	}
	if body["learning_enabled"] != false {
		t.Errorf("learning_enabled = %v", body["learning_enabled"])
	}

	rec, body = doJSON(t, srv, "POST", "/api/privacy/category", `{"category": "fears"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("category: status = %d", rec.Code)
	}
	if body["allowed"] != true {
		t.Errorf("allowed = %v, want fears toggled on", body["allowed"])
	}
}
