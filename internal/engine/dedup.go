package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/veylin/mnemo/internal/store"
)

// UpsertFact merges a candidate into the store. If an active fact already
// exists for the same (category, key), the candidate reinforces or challenges
// it instead of creating a duplicate:
//
//   - same value: confidence +0.1, clamped to 1.0, and one more reference
//   - different value: confidence -0.2; if that drops it under 0.3 the
//     store gives up defending the old value and takes the candidate's
//     value, confidence and source, recording the old value as a version;
//     otherwise the stored value stands (a later conflict scan picks it up)
//
// Returns the fact that now represents the key, and whether a row was inserted.
func (e *Engine) UpsertFact(ctx context.Context, c Candidate, conversationID string) (*store.Fact, bool, error) {
	existing, err := e.db.FetchActiveByKey(ctx, c.Category, c.Key)
	if err != nil {
		return nil, false, fmt.Errorf("dedup lookup %s/%s: %w", c.Category, c.Key, err)
	}

	if existing == nil {
		fact := &store.Fact{
			Category:   c.Category,
			Key:        c.Key,
			Value:      c.Value,
			Confidence: c.Confidence,
			Source:     c.Source,
		}
		if conversationID != "" {
			fact.ConversationIDs = []string{conversationID}
		}
		if err := e.db.InsertFact(ctx, fact); err != nil {
			return nil, false, fmt.Errorf("insert fact %s/%s: %w", c.Category, c.Key, err)
		}
		return fact, true, nil
	}

	if existing.Value == c.Value {
		existing.Confidence = clamp01(existing.Confidence + 0.1)
		existing.TimesReferenced++
	} else {
		existing.Confidence = clamp01(existing.Confidence - 0.2)
		if existing.Confidence < 0.3 {
			if err := e.db.AppendVersion(ctx, existing.ID, existing.Value); err != nil {
				return nil, false, fmt.Errorf("version fact %s: %w", existing.ID, err)
			}
			log.Printf("engine: replacing low-confidence %s/%s %q -> %q", c.Category, c.Key, existing.Value, c.Value)
			existing.Value = c.Value
			existing.Confidence = c.Confidence
			existing.Source = c.Source
		}
	}

	if conversationID != "" && !contains(existing.ConversationIDs, conversationID) {
		existing.ConversationIDs = append(existing.ConversationIDs, conversationID)
	}

	if err := e.db.UpdateFact(ctx, existing); err != nil {
		return nil, false, fmt.Errorf("update fact %s: %w", existing.ID, err)
	}
	return existing, false, nil
}

// UpsertEntityFact is UpsertFact for facts about a named person or thing.
// Uniqueness runs over (category, key, entity type, entity id).
func (e *Engine) UpsertEntityFact(ctx context.Context, c Candidate, entity store.EntityRef, conversationID string) (*store.Fact, bool, error) {
	existing, err := e.db.FetchActiveEntity(ctx, c.Category, c.Key, entity.Type, entity.ID)
	if err != nil {
		return nil, false, fmt.Errorf("dedup entity lookup %s/%s: %w", c.Category, c.Key, err)
	}

	if existing == nil {
		fact := &store.Fact{
			Category:   c.Category,
			Key:        c.Key,
			Value:      c.Value,
			Confidence: c.Confidence,
			Source:     c.Source,
			Entity:     &entity,
		}
		if conversationID != "" {
			fact.ConversationIDs = []string{conversationID}
		}
		if err := e.db.InsertFact(ctx, fact); err != nil {
			return nil, false, fmt.Errorf("insert entity fact %s/%s: %w", c.Category, c.Key, err)
		}
		return fact, true, nil
	}

	if existing.Value == c.Value {
		existing.Confidence = clamp01(existing.Confidence + 0.1)
		existing.TimesReferenced++
	} else {
		existing.Confidence = clamp01(existing.Confidence - 0.2)
		if existing.Confidence < 0.3 {
			if err := e.db.AppendVersion(ctx, existing.ID, existing.Value); err != nil {
				return nil, false, fmt.Errorf("version fact %s: %w", existing.ID, err)
			}
			existing.Value = c.Value
			existing.Confidence = c.Confidence
			existing.Source = c.Source
		}
	}

	if conversationID != "" && !contains(existing.ConversationIDs, conversationID) {
		existing.ConversationIDs = append(existing.ConversationIDs, conversationID)
	}

	if err := e.db.UpdateFact(ctx, existing); err != nil {
		return nil, false, fmt.Errorf("update entity fact %s: %w", existing.ID, err)
	}
	return existing, false, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
