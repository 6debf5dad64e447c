package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/veylin/mnemo/internal/store"
)

// Default knobs for decay and cleanup; overridable via config.
const (
	DefaultDecayDays        = 90
	DefaultStaleDays        = 180
	DefaultQualityThreshold = 0.2
)

// QualityScore rates a fact in [0, 1]:
//
//	confidence x success ratio x recency weight
//
// The success ratio is successful uses over total uses, 1.0 for a fact never
// used. The recency weight falls linearly from 1.0 to 0.1 as the fact's last
// use (or creation) ages toward the decay horizon.
func QualityScore(f *store.Fact, now time.Time) float64 {
	return qualityScoreAt(f, now, DefaultDecayDays)
}

func qualityScoreAt(f *store.Fact, now time.Time, decayDays int) float64 {
	successRatio := 1.0
	total := f.SuccessfulUses + f.FailedUses
	if total > 0 {
		successRatio = float64(f.SuccessfulUses) / float64(total)
	}
	return f.Confidence * successRatio * recencyWeight(f, now, decayDays)
}

// recencyWeight is 1.0 for a fact touched now, sliding down to 0.1 at
// decayDays of disuse and staying there.
func recencyWeight(f *store.Fact, now time.Time, decayDays int) float64 {
	ref := f.CreatedAt
	if f.LastUsedAt != nil {
		ref = *f.LastUsedAt
	}
	// Timestamps persist at second resolution; compare in whole seconds so
	// a fact written within the current second carries no age at all.
	age := now.Unix() - ref
	if age <= 0 {
		return 1.0
	}
	horizon := int64(decayDays) * 86400
	if age >= horizon {
		return 0.1
	}
	return 1.0 - 0.9*(float64(age)/float64(horizon))
}

// AverageQuality is the mean quality score over all active user facts, 0
// when none exist.
func (e *Engine) AverageQuality(ctx context.Context) (float64, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("quality average: %w", err)
	}
	if len(facts) == 0 {
		return 0, nil
	}
	now := time.Now()
	sum := 0.0
	for _, f := range facts {
		sum += qualityScoreAt(f, now, e.decayDays)
	}
	return sum / float64(len(facts)), nil
}

// QualityByCategory breaks the average down per category.
func (e *Engine) QualityByCategory(ctx context.Context) (map[string]float64, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("quality by category: %w", err)
	}
	now := time.Now()
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, f := range facts {
		sums[f.Category] += qualityScoreAt(f, now, e.decayDays)
		counts[f.Category]++
	}
	out := make(map[string]float64, len(sums))
	for cat, sum := range sums {
		out[cat] = sum / float64(counts[cat])
	}
	return out, nil
}

// FindLowQualityFacts returns active facts scoring below the threshold.
func (e *Engine) FindLowQualityFacts(ctx context.Context, threshold float64) ([]*store.Fact, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("low quality scan: %w", err)
	}
	now := time.Now()
	var out []*store.Fact
	for _, f := range facts {
		if qualityScoreAt(f, now, e.decayDays) < threshold {
			out = append(out, f)
		}
	}
	return out, nil
}

// FindStaleFacts returns active facts not used (or created) for at least
// staleDays.
func (e *Engine) FindStaleFacts(ctx context.Context, staleDays int) ([]*store.Fact, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("stale scan: %w", err)
	}
	cutoff := time.Now().Add(-time.Duration(staleDays) * 24 * time.Hour).Unix()
	var out []*store.Fact
	for _, f := range facts {
		ref := f.CreatedAt
		if f.LastUsedAt != nil {
			ref = *f.LastUsedAt
		}
		if ref < cutoff {
			out = append(out, f)
		}
	}
	return out, nil
}

// ApplyDecay recomputes a fact's confidence as its stored confidence scaled
// by the recency weight. The write happens only when the value actually
// drops; decay never raises confidence. A fact ending below the quality
// threshold is deactivated. Returns true when the fact changed.
func (e *Engine) ApplyDecay(ctx context.Context, f *store.Fact) (bool, error) {
	decayed := clamp01(f.Confidence * recencyWeight(f, time.Now(), e.decayDays))
	if decayed >= f.Confidence {
		return false, nil
	}
	f.Confidence = decayed
	if decayed < e.qualityThreshold {
		if err := e.db.DeactivateFact(ctx, f.ID); err != nil {
			return false, fmt.Errorf("decay deactivate %s: %w", f.ID, err)
		}
		f.IsActive = false
		return true, nil
	}
	if err := e.db.UpdateFact(ctx, f); err != nil {
		return false, fmt.Errorf("decay update %s: %w", f.ID, err)
	}
	return true, nil
}

// ApplyDecayToAll decays every active fact. Returns how many changed.
func (e *Engine) ApplyDecayToAll(ctx context.Context) (int, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("decay scan: %w", err)
	}
	changed := 0
	for _, f := range facts {
		ok, err := e.ApplyDecay(ctx, f)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

// CleanupReport counts what AutoCleanup deactivated, by reason.
type CleanupReport struct {
	LowQuality       int `json:"lowQuality"`
	Stale            int `json:"stale"`
	NegativeFeedback int `json:"negativeFeedback"`
}

// AutoCleanup deactivates facts that scored below the quality threshold,
// facts unused past the retention window, and facts flagged incorrect or
// outdated by user feedback. The retention window comes from the privacy
// gate's cleanup-days setting; the configured stale horizon is the fallback
// when that lookup fails. A fact matching several reasons is counted once,
// under the first reason that caught it.
func (e *Engine) AutoCleanup(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{}
	seen := make(map[string]bool)

	staleDays := e.staleDays
	if days, err := e.gate.CleanupDays(ctx); err == nil && days > 0 {
		staleDays = days
	}

	deactivate := func(f *store.Fact) error {
		if seen[f.ID] {
			return nil
		}
		seen[f.ID] = true
		return e.db.DeactivateFact(ctx, f.ID)
	}

	low, err := e.FindLowQualityFacts(ctx, e.qualityThreshold)
	if err != nil {
		return nil, err
	}
	for _, f := range low {
		if err := deactivate(f); err != nil {
			return nil, fmt.Errorf("cleanup low quality %s: %w", f.ID, err)
		}
		report.LowQuality++
	}

	stale, err := e.FindStaleFacts(ctx, staleDays)
	if err != nil {
		return nil, err
	}
	for _, f := range stale {
		if seen[f.ID] {
			continue
		}
		if err := deactivate(f); err != nil {
			return nil, fmt.Errorf("cleanup stale %s: %w", f.ID, err)
		}
		report.Stale++
	}

	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("cleanup feedback scan: %w", err)
	}
	for _, f := range facts {
		if f.UserFeedback != store.FeedbackIncorrect && f.UserFeedback != store.FeedbackOutdated {
			continue
		}
		if seen[f.ID] {
			continue
		}
		if err := deactivate(f); err != nil {
			return nil, fmt.Errorf("cleanup feedback %s: %w", f.ID, err)
		}
		report.NegativeFeedback++
	}

	total := report.LowQuality + report.Stale + report.NegativeFeedback
	if total > 0 {
		log.Printf("engine: cleanup deactivated %d facts (%d low quality, %d stale, %d flagged)",
			total, report.LowQuality, report.Stale, report.NegativeFeedback)
	}
	return report, nil
}
