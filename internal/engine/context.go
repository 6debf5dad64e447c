package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/veylin/mnemo/internal/store"
)

// Context builder defaults.
const (
	DefaultContextMaxTokens = 300
	DefaultContextMaxFacts  = 15

	recentWindow = 7 * 24 * time.Hour
)

// basicsKeys are the identity facts always considered first.
var basicsKeys = map[string]bool{
	"name":       true,
	"age":        true,
	"job":        true,
	"city":       true,
	"occupation": true,
	"profession": true,
}

// categoryKeywords marks a category as relevant when the message mentions
// one of its trigger words, Turkish or English.
var categoryKeywords = map[string][]string{
	store.CategoryPersonalInfo:     {"ben", "benim", "kendim", "i am", "my"},
	store.CategoryRelationships:    {"arkadaş", "aile", "eş", "partner", "friend", "family"},
	store.CategoryLifestyle:        {"yaşam", "hayat", "rutin", "lifestyle", "daily"},
	store.CategoryValues:           {"önem", "değer", "inanç", "value", "belief"},
	store.CategoryFears:            {"korku", "endişe", "kaygı", "fear", "worry", "anxiety"},
	store.CategoryGoals:            {"hedef", "istek", "yapmak istiyorum", "goal", "want to", "wish"},
	store.CategoryPreferences:      {"sever", "sevmem", "beğen", "like", "dislike", "prefer"},
	store.CategoryMemories:         {"hatırla", "eskiden", "geçmişte", "remember", "past", "memory"},
	store.CategoryHabits:           {"her gün", "genelde", "always", "usually", "habit"},
	store.CategoryTriggers:         {"stres", "sinir", "stress", "trigger", "upset"},
	store.CategoryCurrentSituation: {"şimdi", "şu an", "bugün", "now", "currently", "today"},
	store.CategoryRecentEvents:     {"dün", "geçen hafta", "recently", "yesterday", "last week"},
}

// estimateTokens approximates token usage as one token per four characters.
func estimateTokens(s string) int {
	return len(s) / 4
}

// BuildContext renders the knowledge most useful for answering query as a
// labeled prompt block. Facts are picked greedily in four tiers - identity
// basics, query-relevant, recently learned, and well-established - until the
// token budget or the fact ceiling is hit. Every included fact gets its
// reference counter bumped.
func (e *Engine) BuildContext(ctx context.Context, query string) (string, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return "", fmt.Errorf("context fetch: %w", err)
	}
	if len(facts) == 0 {
		return "", nil
	}

	b := newContextBuilder(e.contextMaxTokens, e.contextMaxFacts)

	now := time.Now()
	b.addSection("Basics", pickBasics(facts, 4))
	b.addSection("Relevant", pickRelevant(facts, query, now, 10))
	b.addSection("Recent", pickRecent(facts, now, 5))
	// Established facts only go in when there is real headroom left; they
	// are reinforcement, not essentials.
	if b.remaining() > 50 {
		b.addSection("Established", pickEstablished(facts, 5))
	}

	for _, f := range b.used {
		if err := e.db.TouchFact(ctx, f.ID); err != nil {
			return "", fmt.Errorf("context touch %s: %w", f.ID, err)
		}
	}
	return b.String(), nil
}

// BuildCompactContext is BuildContext without section labels, restricted to
// basics and query-relevant facts. Meant for small prompt windows.
func (e *Engine) BuildCompactContext(ctx context.Context, query string) (string, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return "", fmt.Errorf("context fetch: %w", err)
	}
	if len(facts) == 0 {
		return "", nil
	}

	b := newContextBuilder(e.contextMaxTokens, e.contextMaxFacts)
	b.addBare(pickBasics(facts, 4))
	b.addBare(pickRelevant(facts, query, time.Now(), 10))

	for _, f := range b.used {
		if err := e.db.TouchFact(ctx, f.ID); err != nil {
			return "", fmt.Errorf("context touch %s: %w", f.ID, err)
		}
	}
	return b.String(), nil
}

// contextBuilder accumulates fact lines under a token budget and fact
// ceiling, skipping facts already included by an earlier tier.
type contextBuilder struct {
	sb        strings.Builder
	maxTokens int
	maxFacts  int
	tokens    int
	used      []*store.Fact
	seen      map[string]bool
}

func newContextBuilder(maxTokens, maxFacts int) *contextBuilder {
	if maxTokens <= 0 {
		maxTokens = DefaultContextMaxTokens
	}
	if maxFacts <= 0 {
		maxFacts = DefaultContextMaxFacts
	}
	return &contextBuilder{maxTokens: maxTokens, maxFacts: maxFacts, seen: make(map[string]bool)}
}

func (b *contextBuilder) remaining() int {
	return b.maxTokens - b.tokens
}

func (b *contextBuilder) addSection(label string, facts []*store.Fact) {
	header := label + ":\n"
	wroteHeader := false
	for _, f := range facts {
		line := "- " + factLine(f) + "\n"
		cost := estimateTokens(line)
		if !wroteHeader {
			cost += estimateTokens(header)
		}
		if b.seen[f.ID] || len(b.used) >= b.maxFacts || b.tokens+cost > b.maxTokens {
			continue
		}
		if !wroteHeader {
			b.sb.WriteString(header)
			wroteHeader = true
		}
		b.sb.WriteString(line)
		b.tokens += cost
		b.seen[f.ID] = true
		b.used = append(b.used, f)
	}
}

func (b *contextBuilder) addBare(facts []*store.Fact) {
	for _, f := range facts {
		line := "- " + factLine(f) + "\n"
		cost := estimateTokens(line)
		if b.seen[f.ID] || len(b.used) >= b.maxFacts || b.tokens+cost > b.maxTokens {
			continue
		}
		b.sb.WriteString(line)
		b.tokens += cost
		b.seen[f.ID] = true
		b.used = append(b.used, f)
	}
}

func (b *contextBuilder) String() string {
	return strings.TrimRight(b.sb.String(), "\n")
}

func factLine(f *store.Fact) string {
	if f.Entity != nil {
		return f.Entity.Name + " " + f.Key + ": " + f.Value
	}
	return f.Key + ": " + f.Value
}

func pickBasics(facts []*store.Fact, limit int) []*store.Fact {
	var out []*store.Fact
	for _, f := range facts {
		if basicsKeys[f.Key] && f.Confidence > 0.7 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return truncateFacts(out, limit)
}

// pickRelevant scores each fact against the message: +1.5 when the fact's
// key appears in it, +1.0 for the value, +1.0 when a category trigger word
// appears, plus a recency bonus, all weighted by confidence. Facts referenced
// more than three times get an extra +0.3. Only scores above 0.3 survive.
func pickRelevant(facts []*store.Fact, query string, now time.Time, limit int) []*store.Fact {
	message := strings.ToLower(query)
	if strings.TrimSpace(message) == "" {
		return nil
	}

	type scored struct {
		fact  *store.Fact
		score float64
	}
	var hits []scored
	for _, f := range facts {
		score := 0.0
		if strings.Contains(message, strings.ToLower(f.Key)) {
			score += 1.5
		}
		if strings.Contains(message, strings.ToLower(f.Value)) {
			score += 1.0
		}
		for _, kw := range categoryKeywords[f.Category] {
			if strings.Contains(message, kw) {
				score += 1.0
				break
			}
		}
		score += recencyBonus(f, now)
		score *= f.Confidence
		if f.TimesReferenced > 3 {
			score += 0.3
		}
		if score > 0.3 {
			hits = append(hits, scored{fact: f, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]*store.Fact, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.fact)
	}
	return truncateFacts(out, limit)
}

// recencyBonus tops out at 0.5 for a fact learned just now, fading linearly
// over a week, then holding small flat bonuses for month-old and older facts.
func recencyBonus(f *store.Fact, now time.Time) float64 {
	days := float64(now.Unix()-f.CreatedAt) / 86400
	switch {
	case days < 7:
		return 0.5 * (7 - days) / 7
	case days < 30:
		return 0.25
	default:
		return 0.1
	}
}

// pickRecent keeps the short-lived categories only: what the user is in the
// middle of, and what just happened.
func pickRecent(facts []*store.Fact, now time.Time, limit int) []*store.Fact {
	cutoff := now.Add(-recentWindow).Unix()
	var out []*store.Fact
	for _, f := range facts {
		if f.Category != store.CategoryCurrentSituation && f.Category != store.CategoryRecentEvents {
			continue
		}
		if f.CreatedAt >= cutoff && f.Confidence > 0.6 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return truncateFacts(out, limit)
}

func pickEstablished(facts []*store.Fact, limit int) []*store.Fact {
	var out []*store.Fact
	for _, f := range facts {
		if f.Confidence >= 0.9 && f.TimesReferenced >= 2 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimesReferenced > out[j].TimesReferenced })
	return truncateFacts(out, limit)
}

func truncateFacts(facts []*store.Fact, limit int) []*store.Fact {
	if len(facts) > limit {
		return facts[:limit]
	}
	return facts
}
