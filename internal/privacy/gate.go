// Package privacy controls what the knowledge engine is allowed to learn
// and what may leave the machine. Settings persist in the store so they
// survive restarts.
package privacy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/veylin/mnemo/internal/store"
)

// Settings keys.
const (
	keyLearningEnabled   = "privacy.learning_enabled"
	keyAllowedCategories = "privacy.allowed_categories"
	keyCleanupDays       = "privacy.cleanup_days"
)

// Presets.
const (
	PresetStrict   = "strict"
	PresetBalanced = "balanced"
	PresetOpen     = "open"
)

// DefaultCleanupDays is how long facts live before the privacy-driven
// cleanup horizon, absent an explicit setting.
const DefaultCleanupDays = 90

// defaultAllowed is the balanced category set: enough to be useful,
// nothing that feels like surveillance.
var defaultAllowed = []string{
	store.CategoryPersonalInfo,
	store.CategoryRelationships,
	store.CategoryLifestyle,
	store.CategoryPreferences,
	store.CategoryGoals,
	store.CategoryHabits,
}

var strictAllowed = []string{
	store.CategoryPersonalInfo,
	store.CategoryPreferences,
}

// sensitiveWords flags text that should never become a stored fact,
// whatever its category.
var sensitiveWords = []string{
	"şifre", "parola", "kredi kartı", "tc kimlik", "hesap numarası", "iban",
	"password", "credit card", "ssn", "social security", "bank account", "pin code",
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	cardPattern  = regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`)
	phonePattern = regexp.MustCompile(`\b\d{10,11}\b`)
)

// Gate answers "may we learn this" and scrubs text bound for external APIs.
type Gate struct {
	db *store.DB
}

func NewGate(db *store.DB) *Gate {
	return &Gate{db: db}
}

// LearningEnabled reports whether fact extraction is switched on.
// Defaults to true until the user says otherwise.
func (g *Gate) LearningEnabled(ctx context.Context) (bool, error) {
	val, ok, err := g.db.GetSetting(ctx, keyLearningEnabled)
	if err != nil {
		return false, fmt.Errorf("privacy: %w", err)
	}
	if !ok {
		return true, nil
	}
	return val == "true", nil
}

func (g *Gate) SetLearningEnabled(ctx context.Context, enabled bool) error {
	if err := g.db.SetSetting(ctx, keyLearningEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("privacy: %w", err)
	}
	return nil
}

// AllowedCategories returns the categories learning is permitted for.
func (g *Gate) AllowedCategories(ctx context.Context) ([]string, error) {
	val, ok, err := g.db.GetSetting(ctx, keyAllowedCategories)
	if err != nil {
		return nil, fmt.Errorf("privacy: %w", err)
	}
	if !ok {
		return append([]string(nil), defaultAllowed...), nil
	}
	var cats []string
	if err := json.Unmarshal([]byte(val), &cats); err != nil {
		return nil, fmt.Errorf("privacy: decode allowed categories: %w", err)
	}
	return cats, nil
}

func (g *Gate) setAllowedCategories(ctx context.Context, cats []string) error {
	data, err := json.Marshal(cats)
	if err != nil {
		return fmt.Errorf("privacy: encode allowed categories: %w", err)
	}
	if err := g.db.SetSetting(ctx, keyAllowedCategories, string(data)); err != nil {
		return fmt.Errorf("privacy: %w", err)
	}
	return nil
}

// IsCategoryAllowed reports whether facts of the category may be stored.
func (g *Gate) IsCategoryAllowed(ctx context.Context, category string) (bool, error) {
	cats, err := g.AllowedCategories(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range cats {
		if c == category {
			return true, nil
		}
	}
	return false, nil
}

// ShouldAllow is the full admission check for a candidate fact: learning
// on, category allowed, and no sensitive content in the text.
func (g *Gate) ShouldAllow(ctx context.Context, category, text string) (bool, error) {
	enabled, err := g.LearningEnabled(ctx)
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}
	allowed, err := g.IsCategoryAllowed(ctx, category)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}
	return !ContainsSensitive(text), nil
}

// ToggleCategory adds or removes one category from the allowed set and
// reports its new state.
func (g *Gate) ToggleCategory(ctx context.Context, category string) (bool, error) {
	if !store.ValidCategories[category] {
		return false, fmt.Errorf("privacy: unknown category %q", category)
	}
	cats, err := g.AllowedCategories(ctx)
	if err != nil {
		return false, err
	}
	next := cats[:0]
	found := false
	for _, c := range cats {
		if c == category {
			found = true
			continue
		}
		next = append(next, c)
	}
	if !found {
		next = append(next, category)
	}
	if err := g.setAllowedCategories(ctx, next); err != nil {
		return false, err
	}
	return !found, nil
}

// ApplyPreset replaces the allowed set wholesale: strict keeps identity and
// tastes only, balanced restores the default six, open allows everything.
func (g *Gate) ApplyPreset(ctx context.Context, preset string) error {
	var cats []string
	switch preset {
	case PresetStrict:
		cats = append(cats, strictAllowed...)
	case PresetBalanced:
		cats = append(cats, defaultAllowed...)
	case PresetOpen:
		cats = append(cats, store.Categories...)
	default:
		return fmt.Errorf("privacy: unknown preset %q", preset)
	}
	return g.setAllowedCategories(ctx, cats)
}

// CleanupDays returns the privacy retention horizon in days.
func (g *Gate) CleanupDays(ctx context.Context) (int, error) {
	val, ok, err := g.db.GetSetting(ctx, keyCleanupDays)
	if err != nil {
		return 0, fmt.Errorf("privacy: %w", err)
	}
	if !ok {
		return DefaultCleanupDays, nil
	}
	days, err := strconv.Atoi(val)
	if err != nil || days <= 0 {
		return DefaultCleanupDays, nil
	}
	return days, nil
}

func (g *Gate) SetCleanupDays(ctx context.Context, days int) error {
	if days <= 0 {
		return fmt.Errorf("privacy: cleanup days must be positive")
	}
	if err := g.db.SetSetting(ctx, keyCleanupDays, strconv.Itoa(days)); err != nil {
		return fmt.Errorf("privacy: %w", err)
	}
	return nil
}

// ContainsSensitive reports whether text mentions credentials, IDs or
// financial details that must never be stored. Both the keyword list and
// the email/phone/card patterns count.
func ContainsSensitive(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range sensitiveWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return emailPattern.MatchString(text) ||
		cardPattern.MatchString(text) ||
		phonePattern.MatchString(text)
}

// SanitizeForAPI masks emails, card numbers and phone numbers before text
// is sent to an external model. Running it twice is a no-op: the
// placeholders contain no digits or @ signs to re-match.
func (g *Gate) SanitizeForAPI(text string) string {
	out := emailPattern.ReplaceAllString(text, "[EMAIL]")
	out = cardPattern.ReplaceAllString(out, "[CARD]")
	out = phonePattern.ReplaceAllString(out, "[PHONE]")
	return out
}
