package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/veylin/mnemo/internal/llm"
	"github.com/veylin/mnemo/internal/store"
)

// aiFallbackFactFloor and aiFallbackWordCeiling decide when pattern matching
// alone is not trusted: fewer than two pattern facts, or a message long
// enough that regexes are likely to have missed things.
const (
	aiFallbackFactFloor   = 2
	aiFallbackWordCeiling = 50
)

// EntityCandidate is a candidate fact about a named person or thing.
type EntityCandidate struct {
	Candidate
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId,omitempty"`
	EntityName string `json:"entityName"`
}

// ExtractionResult reports what one extraction pass did.
type ExtractionResult struct {
	Facts   []*store.Fact `json:"facts"`
	New     int           `json:"new"`
	Merged  int           `json:"merged"`
	Skipped int           `json:"skipped"`
	UsedAI  bool          `json:"usedAI"`
}

// ExtractKnowledge runs the full pipeline on one message: pattern rules
// first, the language model as fallback when patterns come up short, then
// the privacy gate and dedup before anything is stored. Stored facts get
// their embeddings queued in the background.
func (e *Engine) ExtractKnowledge(ctx context.Context, text, conversationID string) (*ExtractionResult, error) {
	enabled, err := e.gate.LearningEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if !enabled {
		return &ExtractionResult{}, nil
	}

	candidates := PatternExtract(text)
	var entityCandidates []EntityCandidate

	result := &ExtractionResult{}
	if e.llm != nil && (len(candidates) < aiFallbackFactFloor || wordCount(text) > aiFallbackWordCeiling) {
		users, entities, err := e.aiExtract(ctx, text)
		if err != nil {
			// Pattern results still stand when the model is unreachable.
			log.Printf("engine: ai extraction failed, keeping pattern facts: %v", err)
		} else {
			result.UsedAI = true
			candidates = append(candidates, users...)
			entityCandidates = entities
		}
	}

	if err := e.storeCandidates(ctx, candidates, entityCandidates, conversationID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// QuickExtract is the pattern-only pipeline: no model call, same gating,
// dedup and embedding queue.
func (e *Engine) QuickExtract(ctx context.Context, text, conversationID string) (*ExtractionResult, error) {
	enabled, err := e.gate.LearningEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if !enabled {
		return &ExtractionResult{}, nil
	}

	result := &ExtractionResult{}
	if err := e.storeCandidates(ctx, PatternExtract(text), nil, conversationID, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) storeCandidates(ctx context.Context, candidates []Candidate, entityCandidates []EntityCandidate, conversationID string, result *ExtractionResult) error {
	var embedIDs []string

	for _, c := range candidates {
		// The key carries extracted text too (likes_<item>), so gate both.
		allowed, err := e.gate.ShouldAllow(ctx, c.Category, c.Key+" "+c.Value)
		if err != nil {
			return fmt.Errorf("extract gate: %w", err)
		}
		if !allowed {
			result.Skipped++
			continue
		}
		fact, inserted, err := e.UpsertFact(ctx, c, conversationID)
		if err != nil {
			return err
		}
		if inserted {
			result.New++
		} else {
			result.Merged++
		}
		result.Facts = append(result.Facts, fact)
		embedIDs = append(embedIDs, fact.ID)
	}

	for _, ec := range entityCandidates {
		allowed, err := e.gate.ShouldAllow(ctx, ec.Category, ec.Key+" "+ec.Value)
		if err != nil {
			return fmt.Errorf("extract gate: %w", err)
		}
		if !allowed {
			result.Skipped++
			continue
		}
		entity := store.EntityRef{Type: ec.EntityType, ID: ec.EntityID, Name: ec.EntityName}
		if entity.Type == "" {
			entity.Type = store.EntityOther
		}
		if entity.ID == "" {
			entity.ID = store.NewID()
		}
		fact, inserted, err := e.UpsertEntityFact(ctx, ec.Candidate, entity, conversationID)
		if err != nil {
			return err
		}
		if inserted {
			result.New++
		} else {
			result.Merged++
		}
		result.Facts = append(result.Facts, fact)
		embedIDs = append(embedIDs, fact.ID)
	}

	e.EnqueueEmbeds(embedIDs)
	return nil
}

// aiExtract asks the language model for structured facts. The message goes
// through the privacy sanitizer first so emails, phone numbers and card
// numbers never leave the machine.
func (e *Engine) aiExtract(ctx context.Context, text string) ([]Candidate, []EntityCandidate, error) {
	people, err := e.knownPeople(ctx)
	if err != nil {
		return nil, nil, err
	}

	sanitized := e.gate.SanitizeForAPI(text)
	resp, err := e.llm.Generate(ctx, llm.ExtractionSystemPrompt(peoplePromptList(people)), sanitized, 0.2, 1024)
	if err != nil {
		return nil, nil, fmt.Errorf("ai extract: %w", err)
	}

	users, entities, err := parseAIResponse(resp.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("ai extract parse: %w", err)
	}

	// Back-fill entity IDs for names we already track, so new facts attach
	// to the person instead of spawning a double.
	for i := range entities {
		if entities[i].EntityID != "" {
			continue
		}
		for _, p := range people {
			if strings.EqualFold(p.Name, entities[i].EntityName) {
				entities[i].EntityID = p.ID
				entities[i].EntityType = p.Type
				break
			}
		}
	}
	return users, entities, nil
}

// knownPeople lists the distinct entities facts are already attached to.
func (e *Engine) knownPeople(ctx context.Context) ([]store.EntityRef, error) {
	facts, err := e.db.FetchActiveEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("known entities: %w", err)
	}
	seen := make(map[string]bool)
	var out []store.EntityRef
	for _, f := range facts {
		if f.Entity == nil || seen[f.Entity.ID] {
			continue
		}
		seen[f.Entity.ID] = true
		out = append(out, *f.Entity)
	}
	return out, nil
}

func peoplePromptList(people []store.EntityRef) string {
	if len(people) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(people))
	for _, p := range people {
		parts = append(parts, fmt.Sprintf("%s (%s, id=%s)", p.Name, p.Type, p.ID))
	}
	return strings.Join(parts, ", ")
}

// aiFact mirrors the JSON shape the extraction prompt demands. Values and
// confidences tolerate the model drifting between types.
type aiFact struct {
	Category   string     `json:"category"`
	Key        string     `json:"key"`
	Value      flexString `json:"value"`
	Confidence float64    `json:"confidence"`
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	EntityName string     `json:"entityName"`
}

type aiEnvelope struct {
	UserFacts   []aiFact `json:"userFacts"`
	EntityFacts []aiFact `json:"entityFacts"`
}

// flexString decodes a JSON string, number or bool into a string.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*s = flexString(strconv.FormatFloat(num, 'f', -1, 64))
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = flexString(strconv.FormatBool(b))
		return nil
	}
	return fmt.Errorf("value is neither string, number nor bool: %s", data)
}

// parseAIResponse decodes the model's JSON, tolerating markdown fences and
// leading or trailing prose around the object.
func parseAIResponse(content string) ([]Candidate, []EntityCandidate, error) {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	if start := strings.Index(cleaned, "{"); start > 0 {
		cleaned = cleaned[start:]
	}
	if end := strings.LastIndex(cleaned, "}"); end >= 0 && end < len(cleaned)-1 {
		cleaned = cleaned[:end+1]
	}

	var env aiEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}

	var users []Candidate
	for _, f := range env.UserFacts {
		c, ok := candidateFromAI(f)
		if !ok {
			continue
		}
		users = append(users, c)
	}

	var entities []EntityCandidate
	for _, f := range env.EntityFacts {
		c, ok := candidateFromAI(f)
		if !ok || f.EntityName == "" {
			continue
		}
		entities = append(entities, EntityCandidate{
			Candidate:  c,
			EntityType: f.EntityType,
			EntityID:   f.EntityID,
			EntityName: f.EntityName,
		})
	}
	return users, entities, nil
}

func candidateFromAI(f aiFact) (Candidate, bool) {
	if f.Key == "" || f.Value == "" {
		return Candidate{}, false
	}
	category := f.Category
	if !store.ValidCategories[category] {
		category = store.CategoryOther
	}
	conf := f.Confidence
	if conf <= 0 {
		conf = 0.8
	}
	return Candidate{
		Category:   category,
		Key:        f.Key,
		Value:      string(f.Value),
		Confidence: clamp01(conf),
		Source:     store.SourceAIExtracted,
	}, true
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
