package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/veylin/mnemo/internal/store"
)

// Candidate is a fact extracted from text, not yet gated or persisted.
type Candidate struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// captureRule is one regex extraction rule: the pattern, which capture group
// carries the payload, and how confident a match makes us.
type captureRule struct {
	re    *regexp.Regexp
	group int
}

func rules(group int, patterns ...string) []captureRule {
	out := make([]captureRule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, captureRule{re: regexp.MustCompile(p), group: group})
	}
	return out
}

// Pattern rule sets, Turkish + English. Input is already lowercased.
var (
	jobRules = append(
		rules(2,
			`ben (bir |)([a-zığüşçö]+)(y)?ım`,
			`i am (a |an |)([a-z ]+)`,
			`work as (a |an |)([a-z ]+)`),
		rules(1,
			`mesleğim ([a-zığüşçö]+)`,
			`my job is ([a-z ]+)`,
			`([a-zığüşçö]+) olarak çalış`)...)

	ageRules = rules(1,
		`(\d{2}) yaşındayım`,
		`i am (\d{2}) years old`,
		`yaşım (\d{2})`)

	cityRules = rules(1,
		`(istanbul|ankara|izmir|bursa|antalya|adana|konya)'?[a-z]*\s+(yaşıyorum|oturuyorum)`,
		`live in ([a-z]+)`,
		`i'm from ([a-z]+)`)

	likeRules = append(
		rules(1,
			`([a-zığüşçö ]+)\s+(çok |)severim`,
			`([a-zığüşçö ]+)\s+(çok |)(seviyorum|beğeniyorum)`),
		rules(2, `i (love|like) ([a-z ]+)`)...)

	dislikeRules = append(
		rules(1,
			`([a-zığüşçö ]+)\s+sevmem`,
			`([a-zığüşçö ]+)'?(den|dan)\s+nefret`),
		rules(2, `i (hate|dislike|don't like) ([a-z ]+)`)...)

	goalRules = rules(1,
		`([a-zığüşçö ]+)\s+(istiyorum|isterim)`,
		`([a-zığüşçö ]+)\s+hedefliyorum`,
		`i want to ([a-z ]+)`,
		`my goal is ([a-z ]+)`,
		`hedefim ([a-zığüşçö ]+)`)

	fearRules = append(
		rules(1,
			`([a-zığüşçö ]+)'?(den|dan)\s+korkuyorum`,
			`([a-zığüşçö ]+)\s+beni korkutuyor`),
		rules(2, `i (am|)\s*afraid of ([a-z ]+)`)...)

	stressRules = rules(1,
		`([a-zığüşçö ]+)\s+(beni |)stresliyor`,
		`([a-z ]+)\s+stresses me`)

	partnerRules = rules(0,
		`eşim|partneri?m|sevgilim`,
		`my (wife|husband|partner|girlfriend|boyfriend)`)

	familyRules = rules(1,
		`(annem|babam|ablam|ağabeyim|kardeşim)`,
		`my (mom|dad|mother|father|sister|brother)`)

	habitRules = append(
		rules(2,
			`her (gün|sabah|akşam) ([a-zığüşçö ]+)`,
			`every (day|morning|night) i ([a-z ]+)`),
		rules(1,
			`genellikle ([a-zığüşçö ]+)`,
			`usually ([a-z ]+)`)...)

	situationRules = rules(2,
		`(bu hafta|bu ay|şu sıralar) ([a-zığüşçö ]+)`,
		`(currently|right now) i am ([a-z ]+)`)
)

// commonWords is the noise filter: matches that are bare pronouns,
// articles, or filler are rejected.
var commonWords = map[string]bool{
	"ben": true, "sen": true, "o": true, "biz": true, "siz": true, "onlar": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
	"bir": true, "ve": true, "ama": true, "için": true, "ile": true, "gibi": true,
	"a": true, "an": true, "the": true, "and": true, "but": true, "for": true,
	"with": true, "like": true,
	"çok": true, "az": true, "daha": true, "en": true,
	"this": true, "that": true, "these": true, "those": true,
	"şey": true, "thing": true, "stuff": true,
}

// PatternExtract applies the regex rule set to raw text and returns candidate
// facts. Pure function: no store or network access.
func PatternExtract(text string) []Candidate {
	normalized := strings.ToLower(text)

	var facts []Candidate
	facts = append(facts, extractPersonalInfo(normalized)...)
	facts = append(facts, extractPreferences(normalized)...)
	facts = append(facts, extractGoals(normalized)...)
	facts = append(facts, extractEmotions(normalized)...)
	facts = append(facts, extractRelationships(normalized)...)
	facts = append(facts, extractHabits(normalized)...)
	facts = append(facts, extractCurrentSituation(normalized)...)
	return facts
}

func extractPersonalInfo(text string) []Candidate {
	var facts []Candidate

	for _, r := range jobRules {
		if m, ok := matchGroup(r, text); ok {
			job := cleanExtracted(m)
			if !commonWords[job] && len([]rune(job)) > 2 {
				facts = append(facts, Candidate{
					Category: store.CategoryPersonalInfo, Key: "job", Value: job,
					Confidence: 0.9, Source: store.SourceUserTold,
				})
			}
		}
	}

	for _, r := range ageRules {
		if m, ok := matchGroup(r, text); ok {
			if age, err := strconv.Atoi(m); err == nil && age >= 10 && age <= 100 {
				facts = append(facts, Candidate{
					Category: store.CategoryPersonalInfo, Key: "age", Value: strconv.Itoa(age),
					Confidence: 0.95, Source: store.SourceUserTold,
				})
			}
		}
	}

	for _, r := range cityRules {
		if m, ok := matchGroup(r, text); ok {
			city := capitalize(cleanExtracted(m))
			if city != "" {
				facts = append(facts, Candidate{
					Category: store.CategoryPersonalInfo, Key: "city", Value: city,
					Confidence: 0.85, Source: store.SourceUserTold,
				})
			}
		}
	}

	return facts
}

func extractPreferences(text string) []Candidate {
	var facts []Candidate

	for _, r := range likeRules {
		if m, ok := matchGroup(r, text); ok {
			item := cleanExtracted(m)
			if !commonWords[item] && len([]rune(item)) > 2 {
				facts = append(facts, Candidate{
					Category: store.CategoryPreferences, Key: "likes_" + item, Value: "likes",
					Confidence: 0.8, Source: store.SourceUserTold,
				})
			}
		}
	}

	for _, r := range dislikeRules {
		if m, ok := matchGroup(r, text); ok {
			item := cleanExtracted(m)
			if !commonWords[item] && len([]rune(item)) > 2 {
				facts = append(facts, Candidate{
					Category: store.CategoryPreferences, Key: "dislikes_" + item, Value: "dislikes",
					Confidence: 0.8, Source: store.SourceUserTold,
				})
			}
		}
	}

	return facts
}

func extractGoals(text string) []Candidate {
	var facts []Candidate
	for _, r := range goalRules {
		if m, ok := matchGroup(r, text); ok {
			goal := cleanExtracted(m)
			if !commonWords[goal] && len([]rune(goal)) > 3 {
				facts = append(facts, Candidate{
					Category: store.CategoryGoals, Key: "goal_" + goal, Value: goal,
					Confidence: 0.85, Source: store.SourceUserTold,
				})
			}
		}
	}
	return facts
}

func extractEmotions(text string) []Candidate {
	var facts []Candidate

	for _, r := range fearRules {
		if m, ok := matchGroup(r, text); ok {
			fear := cleanExtracted(m)
			if !commonWords[fear] && len([]rune(fear)) > 2 {
				facts = append(facts, Candidate{
					Category: store.CategoryFears, Key: "fear_" + fear, Value: fear,
					Confidence: 0.85, Source: store.SourceUserTold,
				})
			}
		}
	}

	for _, r := range stressRules {
		if m, ok := matchGroup(r, text); ok {
			trigger := cleanExtracted(m)
			if !commonWords[trigger] && len([]rune(trigger)) > 2 {
				facts = append(facts, Candidate{
					Category: store.CategoryTriggers, Key: "stress_trigger_" + trigger, Value: "stress",
					Confidence: 0.8, Source: store.SourceUserTold,
				})
			}
		}
	}

	return facts
}

func extractRelationships(text string) []Candidate {
	var facts []Candidate

	// One has_partner emission at most, even when several patterns match.
	for _, r := range partnerRules {
		if _, ok := matchGroup(r, text); ok {
			facts = append(facts, Candidate{
				Category: store.CategoryRelationships, Key: "has_partner", Value: "true",
				Confidence: 0.9, Source: store.SourceInferred,
			})
			break
		}
	}

	for _, r := range familyRules {
		if m, ok := matchGroup(r, text); ok {
			facts = append(facts, Candidate{
				Category: store.CategoryRelationships, Key: "has_" + m, Value: "true",
				Confidence: 0.85, Source: store.SourceInferred,
			})
		}
	}

	return facts
}

func extractHabits(text string) []Candidate {
	var facts []Candidate
	for _, r := range habitRules {
		if m, ok := matchGroup(r, text); ok {
			habit := cleanExtracted(m)
			if !commonWords[habit] && len([]rune(habit)) > 2 {
				facts = append(facts, Candidate{
					Category: store.CategoryHabits, Key: "habit_" + habit, Value: habit,
					Confidence: 0.75, Source: store.SourcePattern,
				})
			}
		}
	}
	return facts
}

func extractCurrentSituation(text string) []Candidate {
	var facts []Candidate
	for _, r := range situationRules {
		if m, ok := matchGroup(r, text); ok {
			situation := cleanExtracted(m)
			if !commonWords[situation] && len([]rune(situation)) > 2 {
				facts = append(facts, Candidate{
					Category: store.CategoryCurrentSituation, Key: "current_state", Value: situation,
					Confidence: 0.7, Source: store.SourceInferred,
				})
			}
		}
	}
	return facts
}

// matchGroup runs a rule against text and returns the configured capture
// group of the first match. Group 0 means "the whole match".
func matchGroup(r captureRule, text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil || r.group >= len(m) {
		return "", false
	}
	return m[r.group], true
}

// cleanExtracted trims whitespace and strips quote characters from a capture.
func cleanExtracted(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, `"`, "")
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
