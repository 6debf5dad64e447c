package store

import (
	"context"
	"math"
	"testing"
)

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float64{0.1, -0.5, 3.14159, 0, 1e-9}
	got := decodeEmbedding(encodeEmbedding(vec))
	if len(got) != len(vec) {
		t.Fatalf("len = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if math.Abs(got[i]-vec[i]) > 1e-12 {
			t.Errorf("vec[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestSaveAndGetVector(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	f := &Fact{Category: CategoryOther, Key: "k", Value: "v", Confidence: 0.5, Source: SourceInferred}
	if err := db.InsertFact(ctx, f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}

	rec := &VectorRecord{FactID: f.ID, Embedding: []float64{0.6, 0.8}, Model: "hash-v1"}
	if err := db.SaveVector(ctx, rec); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	got, err := db.GetVector(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if got == nil {
		t.Fatal("GetVector returned nil")
	}
	if got.Model != "hash-v1" || got.Dimensions != 2 {
		t.Errorf("got %+v", got)
	}
	if got.Embedding[0] != 0.6 || got.Embedding[1] != 0.8 {
		t.Errorf("Embedding = %v", got.Embedding)
	}
}

func TestSaveVectorReplaces(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	f := &Fact{Category: CategoryOther, Key: "k", Value: "v", Confidence: 0.5, Source: SourceInferred}
	if err := db.InsertFact(ctx, f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}

	if err := db.SaveVector(ctx, &VectorRecord{FactID: f.ID, Embedding: []float64{1, 0}, Model: "hash-v1"}); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}
	if err := db.SaveVector(ctx, &VectorRecord{FactID: f.ID, Embedding: []float64{0, 1, 0}, Model: "ollama:nomic-embed-text"}); err != nil {
		t.Fatalf("SaveVector replace: %v", err)
	}

	got, err := db.GetVector(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if got.Model != "ollama:nomic-embed-text" || got.Dimensions != 3 {
		t.Errorf("replace did not take: %+v", got)
	}

	all, err := db.AllVectors(ctx)
	if err != nil {
		t.Fatalf("AllVectors: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(AllVectors) = %d, want 1", len(all))
	}
}

func TestDeleteVector(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	f := &Fact{Category: CategoryOther, Key: "k", Value: "v", Confidence: 0.5, Source: SourceInferred}
	if err := db.InsertFact(ctx, f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}
	if err := db.SaveVector(ctx, &VectorRecord{FactID: f.ID, Embedding: []float64{1}, Model: "hash-v1"}); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}
	if err := db.DeleteVector(ctx, f.ID); err != nil {
		t.Fatalf("DeleteVector: %v", err)
	}
	got, err := db.GetVector(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if got != nil {
		t.Error("vector still present after delete")
	}
}
