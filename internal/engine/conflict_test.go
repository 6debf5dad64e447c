package engine

import (
	"context"
	"testing"

	"github.com/veylin/mnemo/internal/store"
)

func insertFact(t *testing.T, e *Engine, f *store.Fact) *store.Fact {
	t.Helper()
	if err := e.db.InsertFact(context.Background(), f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}
	return f
}

func TestDetectConflictsDifferentValues(t *testing.T) {
	e := testEngine(t)

	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Istanbul", Confidence: 0.85, Source: store.SourceUserTold})
	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Ankara", Confidence: 0.7, Source: store.SourceInferred})

	conflicts, err := e.DetectConflicts(context.Background())
	if err != nil {
		t.Fatalf("DetectConflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(conflicts))
	}
	if conflicts[0].Kind != ConflictDifferentValues {
		t.Errorf("Kind = %q", conflicts[0].Kind)
	}
	if conflicts[0].Key != "city" {
		t.Errorf("Key = %q, want city", conflicts[0].Key)
	}
	if len(conflicts[0].Facts) != 2 {
		t.Errorf("len(Facts) = %d, want 2", len(conflicts[0].Facts))
	}
}

func TestDetectConflictsGroupsThreeValues(t *testing.T) {
	e := testEngine(t)

	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Istanbul", Confidence: 0.85, Source: store.SourceUserTold})
	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Ankara", Confidence: 0.7, Source: store.SourceInferred})
	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Izmir", Confidence: 0.6, Source: store.SourceInferred})

	conflicts, err := e.DetectConflicts(context.Background())
	if err != nil {
		t.Fatalf("DetectConflicts: %v", err)
	}
	// One key in dispute is one conflict, however many values pile up.
	if len(conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(conflicts))
	}
	if len(conflicts[0].Facts) != 3 {
		t.Errorf("len(Facts) = %d, want all three", len(conflicts[0].Facts))
	}
}

func TestDetectConflictsOppositePreferences(t *testing.T) {
	e := testEngine(t)

	insertFact(t, e, &store.Fact{Category: store.CategoryPreferences, Key: "likes_coffee",
		Value: "likes", Confidence: 0.8, Source: store.SourceUserTold})
	insertFact(t, e, &store.Fact{Category: store.CategoryPreferences, Key: "dislikes_coffee",
		Value: "dislikes", Confidence: 0.8, Source: store.SourceUserTold})
	insertFact(t, e, &store.Fact{Category: store.CategoryPreferences, Key: "likes_tea",
		Value: "likes", Confidence: 0.8, Source: store.SourceUserTold})

	conflicts, err := e.DetectConflicts(context.Background())
	if err != nil {
		t.Fatalf("DetectConflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(conflicts))
	}
	if conflicts[0].Kind != ConflictOppositePreferences {
		t.Errorf("Kind = %q", conflicts[0].Kind)
	}
}

func TestDetectConflictsNoneWhenClean(t *testing.T) {
	e := testEngine(t)

	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Istanbul", Confidence: 0.85, Source: store.SourceUserTold})
	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "job",
		Value: "engineer", Confidence: 0.9, Source: store.SourceUserTold})

	conflicts, err := e.DetectConflicts(context.Background())
	if err != nil {
		t.Fatalf("DetectConflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("conflicts = %+v, want none", conflicts)
	}
}

func TestResolveKeepHighestQuality(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	weak := insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Ankara", Confidence: 0.4, Source: store.SourceInferred})
	strong := insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Istanbul", Confidence: 0.85, Source: store.SourceUserTold})

	err := e.ResolveConflict(ctx, Conflict{Kind: ConflictDifferentValues, Key: "city",
		Facts: []*store.Fact{weak, strong}}, ResolveKeepHighestQuality)
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	gotWeak, _ := e.db.GetFact(ctx, weak.ID)
	gotStrong, _ := e.db.GetFact(ctx, strong.ID)
	if gotWeak.IsActive {
		t.Error("lower-quality fact should be deactivated")
	}
	if !gotStrong.IsActive {
		t.Error("winner deactivated")
	}
	if got := gotStrong.Confidence; got < 0.94 || got > 0.96 {
		t.Errorf("winner Confidence = %v, want boosted to 0.95", got)
	}
}

func TestResolveKeepMostRecent(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	older := insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Ankara", Confidence: 0.8, Source: store.SourceUserTold, CreatedAt: 1000})
	newer := insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Istanbul", Confidence: 0.8, Source: store.SourceUserTold, CreatedAt: 2000})

	err := e.ResolveConflict(ctx, Conflict{Kind: ConflictDifferentValues, Key: "city",
		Facts: []*store.Fact{older, newer}}, ResolveKeepMostRecent)
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	gotOlder, _ := e.db.GetFact(ctx, older.ID)
	if gotOlder.IsActive {
		t.Error("older fact should be deactivated")
	}
	versions, err := e.db.GetVersions(ctx, newer.ID)
	if err != nil {
		t.Fatalf("GetVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].OldValue != "Ankara" {
		t.Errorf("versions = %+v, want displaced value recorded", versions)
	}
}

func TestResolveMerge(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	first := insertFact(t, e, &store.Fact{Category: store.CategoryGoals, Key: "goal_fitness",
		Value: "run more", Confidence: 0.85, Source: store.SourceUserTold})
	second := insertFact(t, e, &store.Fact{Category: store.CategoryGoals, Key: "goal_fitness",
		Value: "lift weights", Confidence: 0.85, Source: store.SourceUserTold})

	err := e.ResolveConflict(ctx, Conflict{Kind: ConflictDifferentValues, Key: "goal_fitness",
		Facts: []*store.Fact{first, second}}, ResolveMerge)
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	gotFirst, _ := e.db.GetFact(ctx, first.ID)
	if gotFirst.Value != "run more / lift weights" {
		t.Errorf("merged Value = %q", gotFirst.Value)
	}
	if got := gotFirst.Confidence; got < 0.94 || got > 0.96 {
		t.Errorf("merged Confidence = %v, want boosted to 0.95", got)
	}
	gotSecond, _ := e.db.GetFact(ctx, second.ID)
	if gotSecond.IsActive {
		t.Error("second fact should be deactivated after merge")
	}
}

func TestResolveMergeJoinsWholeGroup(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	a := insertFact(t, e, &store.Fact{Category: store.CategoryGoals, Key: "goal_fitness",
		Value: "run more", Confidence: 0.8, Source: store.SourceUserTold})
	b := insertFact(t, e, &store.Fact{Category: store.CategoryGoals, Key: "goal_fitness",
		Value: "lift weights", Confidence: 0.8, Source: store.SourceUserTold})
	c := insertFact(t, e, &store.Fact{Category: store.CategoryGoals, Key: "goal_fitness",
		Value: "swim weekly", Confidence: 0.8, Source: store.SourceUserTold})

	err := e.ResolveConflict(ctx, Conflict{Kind: ConflictDifferentValues, Key: "goal_fitness",
		Facts: []*store.Fact{a, b, c}}, ResolveMerge)
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	got, _ := e.db.GetFact(ctx, a.ID)
	if got.Value != "run more / lift weights / swim weekly" {
		t.Errorf("merged Value = %q", got.Value)
	}
	for _, loser := range []*store.Fact{b, c} {
		f, _ := e.db.GetFact(ctx, loser.ID)
		if f.IsActive {
			t.Errorf("fact %s should be deactivated after merge", loser.ID)
		}
	}
}

func TestResolveKeepBoth(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	first := insertFact(t, e, &store.Fact{Category: store.CategoryPreferences, Key: "likes_coffee",
		Value: "likes", Confidence: 0.8, Source: store.SourceUserTold})
	second := insertFact(t, e, &store.Fact{Category: store.CategoryPreferences, Key: "dislikes_coffee",
		Value: "dislikes", Confidence: 0.8, Source: store.SourceUserTold})

	err := e.ResolveConflict(ctx, Conflict{Kind: ConflictOppositePreferences, Key: "coffee",
		Facts: []*store.Fact{first, second}}, ResolveKeepBoth)
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	gotFirst, _ := e.db.GetFact(ctx, first.ID)
	gotSecond, _ := e.db.GetFact(ctx, second.ID)
	if !gotFirst.IsActive || !gotSecond.IsActive {
		t.Error("keepBoth must leave both facts active")
	}
}

func TestResolveUnknownPolicy(t *testing.T) {
	e := testEngine(t)

	first := insertFact(t, e, &store.Fact{Category: store.CategoryOther, Key: "k",
		Value: "a", Confidence: 0.5, Source: store.SourceInferred})
	second := insertFact(t, e, &store.Fact{Category: store.CategoryOther, Key: "k",
		Value: "b", Confidence: 0.5, Source: store.SourceInferred})

	err := e.ResolveConflict(context.Background(),
		Conflict{Kind: ConflictDifferentValues, Key: "k", Facts: []*store.Fact{first, second}}, "coin-flip")
	if err == nil {
		t.Error("unknown policy must error")
	}
}

func TestAutoResolveAll(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Istanbul", Confidence: 0.85, Source: store.SourceUserTold})
	insertFact(t, e, &store.Fact{Category: store.CategoryPersonalInfo, Key: "city",
		Value: "Ankara", Confidence: 0.4, Source: store.SourceInferred})
	insertFact(t, e, &store.Fact{Category: store.CategoryPreferences, Key: "likes_coffee",
		Value: "likes", Confidence: 0.8, Source: store.SourceUserTold})
	insertFact(t, e, &store.Fact{Category: store.CategoryPreferences, Key: "dislikes_coffee",
		Value: "dislikes", Confidence: 0.6, Source: store.SourceInferred})

	n, err := e.AutoResolveAll(ctx, ResolveKeepHighestQuality)
	if err != nil {
		t.Fatalf("AutoResolveAll: %v", err)
	}
	if n != 2 {
		t.Errorf("resolved = %d, want 2", n)
	}

	remaining, err := e.DetectConflicts(ctx)
	if err != nil {
		t.Fatalf("DetectConflicts: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("conflicts remain: %+v", remaining)
	}
}
