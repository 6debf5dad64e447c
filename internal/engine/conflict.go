package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/veylin/mnemo/internal/store"
)

// Conflict kinds.
const (
	ConflictDifferentValues     = "differentValues"
	ConflictOppositePreferences = "oppositePreferences"
)

// Resolution policies.
const (
	ResolveKeepHighestQuality = "keepHighestQuality"
	ResolveKeepMostRecent     = "keepMostRecent"
	ResolveMerge              = "merge"
	ResolveKeepBoth           = "keepBoth"
)

// Conflict is a group of active facts that cannot all be taken at face
// value: every fact sharing one (category, key) when their values disagree,
// or a likes_<x>/dislikes_<x> pair (Key then holds the item).
type Conflict struct {
	Kind  string        `json:"kind"`
	Key   string        `json:"key"`
	Facts []*store.Fact `json:"facts"`
}

// DetectConflicts scans all active user facts and reports conflicting
// groups. A (category, key) group with two or more distinct values is one
// differentValues conflict carrying the whole group.
func (e *Engine) DetectConflicts(ctx context.Context) ([]Conflict, error) {
	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("conflict scan: %w", err)
	}

	var conflicts []Conflict

	byKey := make(map[string][]*store.Fact)
	var order []string
	for _, f := range facts {
		k := f.Category + "\x00" + f.Key
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], f)
	}
	for _, k := range order {
		group := byKey[k]
		if len(group) < 2 {
			continue
		}
		values := make(map[string]struct{}, len(group))
		for _, f := range group {
			values[f.Value] = struct{}{}
		}
		if len(values) < 2 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Kind:  ConflictDifferentValues,
			Key:   group[0].Key,
			Facts: group,
		})
	}

	likes := make(map[string]*store.Fact)
	dislikes := make(map[string]*store.Fact)
	for _, f := range facts {
		if f.Category != store.CategoryPreferences {
			continue
		}
		if item, ok := strings.CutPrefix(f.Key, "likes_"); ok {
			likes[item] = f
		} else if item, ok := strings.CutPrefix(f.Key, "dislikes_"); ok {
			dislikes[item] = f
		}
	}
	for item, like := range likes {
		if dislike, ok := dislikes[item]; ok {
			conflicts = append(conflicts, Conflict{
				Kind:  ConflictOppositePreferences,
				Key:   item,
				Facts: []*store.Fact{like, dislike},
			})
		}
	}

	return conflicts, nil
}

// ResolveConflict applies a policy to a conflicting group:
//
//   - keepHighestQuality: deactivate every fact but the highest-quality one,
//     boost the winner by +0.1 confidence
//   - keepMostRecent: deactivate every fact but the newest; each losing value
//     is recorded as a version of the survivor
//   - merge: join every value with " / " onto the first fact, boost it +0.1,
//     deactivate the rest
//   - keepBoth: leave everything active
func (e *Engine) ResolveConflict(ctx context.Context, c Conflict, policy string) error {
	if len(c.Facts) < 2 {
		return fmt.Errorf("resolve %s: conflict needs at least two facts", c.Kind)
	}

	switch policy {
	case ResolveKeepHighestQuality:
		now := time.Now()
		sorted := append([]*store.Fact(nil), c.Facts...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return QualityScore(sorted[i], now) > QualityScore(sorted[j], now)
		})
		winner := sorted[0]
		for _, loser := range sorted[1:] {
			if err := e.db.DeactivateFact(ctx, loser.ID); err != nil {
				return fmt.Errorf("resolve %s: %w", c.Kind, err)
			}
		}
		winner.Confidence = clamp01(winner.Confidence + 0.1)
		if err := e.db.UpdateFact(ctx, winner); err != nil {
			return fmt.Errorf("resolve %s: %w", c.Kind, err)
		}
		log.Printf("engine: conflict %s resolved by quality, kept %s", c.Kind, winner.ID)
		return nil

	case ResolveKeepMostRecent:
		sorted := append([]*store.Fact(nil), c.Facts...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].CreatedAt > sorted[j].CreatedAt
		})
		winner := sorted[0]
		for _, loser := range sorted[1:] {
			if err := e.db.AppendVersion(ctx, winner.ID, loser.Value); err != nil {
				return fmt.Errorf("resolve %s: %w", c.Kind, err)
			}
			if err := e.db.DeactivateFact(ctx, loser.ID); err != nil {
				return fmt.Errorf("resolve %s: %w", c.Kind, err)
			}
		}
		log.Printf("engine: conflict %s resolved by recency, kept %s", c.Kind, winner.ID)
		return nil

	case ResolveMerge:
		values := make([]string, len(c.Facts))
		for i, f := range c.Facts {
			values[i] = f.Value
		}
		first := c.Facts[0]
		first.Value = strings.Join(values, " / ")
		first.Confidence = clamp01(first.Confidence + 0.1)
		if err := e.db.UpdateFact(ctx, first); err != nil {
			return fmt.Errorf("resolve %s: %w", c.Kind, err)
		}
		for _, f := range c.Facts[1:] {
			if err := e.db.DeactivateFact(ctx, f.ID); err != nil {
				return fmt.Errorf("resolve %s: %w", c.Kind, err)
			}
		}
		log.Printf("engine: conflict %s merged into %s", c.Kind, first.ID)
		return nil

	case ResolveKeepBoth:
		return nil

	default:
		return fmt.Errorf("resolve: unknown policy %q", policy)
	}
}

// AutoResolveAll detects and resolves every current conflict with a single
// policy. Returns how many conflicts were resolved.
func (e *Engine) AutoResolveAll(ctx context.Context, policy string) (int, error) {
	conflicts, err := e.DetectConflicts(ctx)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, c := range conflicts {
		// A fact deactivated by an earlier resolution may appear again in a
		// later group; drop dead rows and skip groups that collapsed.
		live := make([]*store.Fact, 0, len(c.Facts))
		for _, f := range c.Facts {
			fresh, err := e.db.GetFact(ctx, f.ID)
			if err != nil {
				return resolved, err
			}
			if fresh != nil && fresh.IsActive {
				live = append(live, fresh)
			}
		}
		if len(live) < 2 {
			continue
		}
		c.Facts = live
		if err := e.ResolveConflict(ctx, c, policy); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
