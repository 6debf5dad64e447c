package engine

import (
	"context"
	"testing"

	"github.com/veylin/mnemo/internal/store"
)

func TestUpsertFactInserts(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	c := Candidate{Category: store.CategoryPersonalInfo, Key: "job", Value: "engineer",
		Confidence: 0.9, Source: store.SourceUserTold}
	fact, inserted, err := e.UpsertFact(ctx, c, "conv-1")
	if err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}
	if !inserted {
		t.Error("expected insert")
	}
	if fact.ID == "" || fact.Confidence != 0.9 {
		t.Errorf("fact = %+v", fact)
	}
	if len(fact.ConversationIDs) != 1 || fact.ConversationIDs[0] != "conv-1" {
		t.Errorf("ConversationIDs = %v", fact.ConversationIDs)
	}
}

func TestUpsertFactSameValueBoosts(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	c := Candidate{Category: store.CategoryPersonalInfo, Key: "job", Value: "engineer",
		Confidence: 0.85, Source: store.SourceUserTold}
	if _, _, err := e.UpsertFact(ctx, c, "conv-1"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	fact, inserted, err := e.UpsertFact(ctx, c, "conv-2")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Error("second upsert should merge, not insert")
	}
	if got := fact.Confidence; got < 0.94 || got > 0.96 {
		t.Errorf("Confidence = %v, want 0.95", got)
	}
	if len(fact.ConversationIDs) != 2 {
		t.Errorf("ConversationIDs = %v, want both conversations", fact.ConversationIDs)
	}

	// Boost clamps at 1.0.
	fact, _, err = e.UpsertFact(ctx, c, "conv-2")
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if fact.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamp at 1.0", fact.Confidence)
	}
	if len(fact.ConversationIDs) != 2 {
		t.Errorf("duplicate conversation recorded: %v", fact.ConversationIDs)
	}
}

func TestUpsertFactDifferentValuePenalizes(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	if _, _, err := e.UpsertFact(ctx, Candidate{
		Category: store.CategoryPersonalInfo, Key: "city", Value: "Istanbul",
		Confidence: 0.85, Source: store.SourceUserTold}, ""); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	fact, inserted, err := e.UpsertFact(ctx, Candidate{
		Category: store.CategoryPersonalInfo, Key: "city", Value: "Ankara",
		Confidence: 0.85, Source: store.SourceUserTold}, "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Error("conflicting value should not insert")
	}
	if fact.Value != "Istanbul" {
		t.Errorf("Value = %q, stored value should stand", fact.Value)
	}
	if got := fact.Confidence; got < 0.64 || got > 0.66 {
		t.Errorf("Confidence = %v, want 0.65", got)
	}
}

func TestUpsertFactSameValueCountsReference(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	c := Candidate{Category: store.CategoryPreferences, Key: "likes_coffee", Value: "coffee",
		Confidence: 0.7, Source: store.SourceUserTold}
	if _, _, err := e.UpsertFact(ctx, c, ""); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	fact, _, err := e.UpsertFact(ctx, c, "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if fact.TimesReferenced != 1 {
		t.Errorf("TimesReferenced = %d, want 1 after a repeat", fact.TimesReferenced)
	}
}

func TestUpsertFactPenaltyCanTriggerOverwrite(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	if _, _, err := e.UpsertFact(ctx, Candidate{
		Category: store.CategoryPersonalInfo, Key: "city", Value: "Istanbul",
		Confidence: 0.45, Source: store.SourceInferred}, ""); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// 0.45 - 0.2 lands under 0.3, so the stored value stops being defended.
	fact, _, err := e.UpsertFact(ctx, Candidate{
		Category: store.CategoryPersonalInfo, Key: "city", Value: "Ankara",
		Confidence: 0.8, Source: store.SourceUserTold}, "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if fact.Value != "Ankara" || fact.Confidence != 0.8 || fact.Source != store.SourceUserTold {
		t.Errorf("fact = %+v, want candidate to win", fact)
	}

	versions, err := e.db.GetVersions(ctx, fact.ID)
	if err != nil {
		t.Fatalf("GetVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].OldValue != "Istanbul" {
		t.Errorf("versions = %+v, want old value recorded", versions)
	}
}

func TestUpsertFactLowConfidenceOverwritten(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	if _, _, err := e.UpsertFact(ctx, Candidate{
		Category: store.CategoryCurrentSituation, Key: "current_state", Value: "stressed",
		Confidence: 0.2, Source: store.SourceInferred}, ""); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	fact, _, err := e.UpsertFact(ctx, Candidate{
		Category: store.CategoryCurrentSituation, Key: "current_state", Value: "relaxed",
		Confidence: 0.7, Source: store.SourceUserTold}, "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if fact.Value != "relaxed" || fact.Confidence != 0.7 || fact.Source != store.SourceUserTold {
		t.Errorf("fact = %+v, want overwrite", fact)
	}

	versions, err := e.db.GetVersions(ctx, fact.ID)
	if err != nil {
		t.Fatalf("GetVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].OldValue != "stressed" {
		t.Errorf("versions = %+v, want old value recorded", versions)
	}
}

func TestUpsertEntityFactScoping(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	ali := store.EntityRef{Type: store.EntityPerson, ID: store.NewID(), Name: "Ali"}
	veli := store.EntityRef{Type: store.EntityPerson, ID: store.NewID(), Name: "Veli"}
	c := Candidate{Category: store.CategoryPersonalInfo, Key: "job", Value: "doctor",
		Confidence: 0.8, Source: store.SourceAIExtracted}

	if _, inserted, err := e.UpsertEntityFact(ctx, c, ali, ""); err != nil || !inserted {
		t.Fatalf("ali upsert: inserted=%v err=%v", inserted, err)
	}
	// Same key for a different person is a separate fact, not a merge.
	if _, inserted, err := e.UpsertEntityFact(ctx, c, veli, ""); err != nil || !inserted {
		t.Fatalf("veli upsert: inserted=%v err=%v", inserted, err)
	}
	// Repeating for the same person merges.
	fact, inserted, err := e.UpsertEntityFact(ctx, c, ali, "")
	if err != nil {
		t.Fatalf("ali repeat: %v", err)
	}
	if inserted {
		t.Error("repeat for same entity should merge")
	}
	if got := fact.Confidence; got < 0.89 || got > 0.91 {
		t.Errorf("Confidence = %v, want 0.9", got)
	}
}
