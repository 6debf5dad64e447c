package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Knowledge categories. The set is closed: the schema rejects anything else.
const (
	CategoryPersonalInfo     = "personalInfo"
	CategoryRelationships    = "relationships"
	CategoryLifestyle        = "lifestyle"
	CategoryValues           = "values"
	CategoryFears            = "fears"
	CategoryGoals            = "goals"
	CategoryPreferences      = "preferences"
	CategoryMemories         = "memories"
	CategoryExperiences      = "experiences"
	CategoryChallenges       = "challenges"
	CategoryHabits           = "habits"
	CategoryTriggers         = "triggers"
	CategoryCurrentSituation = "currentSituation"
	CategoryRecentEvents     = "recentEvents"
	CategoryOther            = "other"
)

// Categories lists every knowledge category in declaration order.
var Categories = []string{
	CategoryPersonalInfo, CategoryRelationships, CategoryLifestyle,
	CategoryValues, CategoryFears, CategoryGoals, CategoryPreferences,
	CategoryMemories, CategoryExperiences, CategoryChallenges,
	CategoryHabits, CategoryTriggers, CategoryCurrentSituation,
	CategoryRecentEvents, CategoryOther,
}

// ValidCategories is the membership set for Categories.
var ValidCategories = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// Fact sources.
const (
	SourceUserTold    = "user_told"
	SourceInferred    = "inferred"
	SourcePattern     = "pattern"
	SourceAIExtracted = "ai_extracted"
)

// User feedback values.
const (
	FeedbackIncorrect = "incorrect"
	FeedbackOutdated  = "outdated"
	FeedbackConfirmed = "confirmed"
)

// Entity types for entity-scoped facts.
const (
	EntityPerson   = "person"
	EntityPlace    = "place"
	EntityActivity = "activity"
	EntityObject   = "object"
	EntityOther    = "other"
)

// EntityRef scopes a fact to a named external entity (e.g. a friend).
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Fact is a single (category, key, value) knowledge unit. Entity is nil for
// facts about the user. Retirement is logical: IsActive flips to false, the
// row stays.
type Fact struct {
	ID              string     `json:"id"`
	Category        string     `json:"category"`
	Key             string     `json:"key"`
	Value           string     `json:"value"`
	Confidence      float64    `json:"confidence"`
	Source          string     `json:"source"`
	Entity          *EntityRef `json:"entity,omitempty"`
	TimesReferenced int        `json:"times_referenced"`
	SuccessfulUses  int        `json:"successful_uses"`
	FailedUses      int        `json:"failed_uses"`
	UserFeedback    string     `json:"user_feedback,omitempty"`
	LastUsedAt      *int64     `json:"last_used_at,omitempty"`
	ConversationIDs []string   `json:"conversation_ids,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       int64      `json:"created_at"`
}

// FactVersion is a prior value recorded when conflict resolution rewrites a fact.
type FactVersion struct {
	ID        int64  `json:"id"`
	FactID    string `json:"fact_id"`
	OldValue  string `json:"old_value"`
	ChangedAt int64  `json:"changed_at"`
}

// NewID returns a fresh ULID for a fact.
func NewID() string {
	return ulid.Make().String()
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

const factColumns = `id, category, key, value, confidence, source,
	entity_type, entity_id, entity_name,
	times_referenced, successful_uses, failed_uses, user_feedback, last_used_at,
	conversation_ids, is_active, created_at`

// InsertFact stores a new fact. A missing ID or CreatedAt is filled in.
func (db *DB) InsertFact(ctx context.Context, f *Fact) error {
	if f.ID == "" {
		f.ID = NewID()
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = time.Now().Unix()
	}
	f.Confidence = clamp01(f.Confidence)
	f.IsActive = true

	convIDs, err := json.Marshal(nonNil(f.ConversationIDs))
	if err != nil {
		return fmt.Errorf("marshal conversation ids: %w", err)
	}

	var etype, eid, ename any
	if f.Entity != nil {
		etype = f.Entity.Type
		eid = nullable(f.Entity.ID)
		ename = nullable(f.Entity.Name)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO facts (`+factColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Category, f.Key, f.Value, f.Confidence, f.Source,
		etype, eid, ename,
		f.TimesReferenced, f.SuccessfulUses, f.FailedUses,
		nullable(f.UserFeedback), f.LastUsedAt,
		string(convIDs), 1, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// UpdateFact writes back the mutable fields of a fact.
func (db *DB) UpdateFact(ctx context.Context, f *Fact) error {
	f.Confidence = clamp01(f.Confidence)

	convIDs, err := json.Marshal(nonNil(f.ConversationIDs))
	if err != nil {
		return fmt.Errorf("marshal conversation ids: %w", err)
	}

	active := 0
	if f.IsActive {
		active = 1
	}

	_, err = db.ExecContext(ctx, `
		UPDATE facts SET value = ?, confidence = ?, source = ?,
			times_referenced = ?, successful_uses = ?, failed_uses = ?,
			user_feedback = ?, last_used_at = ?, conversation_ids = ?, is_active = ?
		WHERE id = ?
	`, f.Value, f.Confidence, f.Source,
		f.TimesReferenced, f.SuccessfulUses, f.FailedUses,
		nullable(f.UserFeedback), f.LastUsedAt, string(convIDs), active, f.ID)
	if err != nil {
		return fmt.Errorf("update fact: %w", err)
	}
	return nil
}

// GetFact returns a fact by id, or nil if not found.
func (db *DB) GetFact(ctx context.Context, id string) (*Fact, error) {
	row := db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts WHERE id = ?`, id)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return f, nil
}

// FetchActiveByKey returns the active user fact for (category, key), or nil.
// If duplicates transiently exist, the oldest is returned so merge targets
// stay stable until conflict resolution runs.
func (db *DB) FetchActiveByKey(ctx context.Context, category, key string) (*Fact, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE category = ? AND key = ? AND is_active = 1 AND entity_type IS NULL
		ORDER BY created_at ASC LIMIT 1
	`, category, key)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch active by key: %w", err)
	}
	return f, nil
}

// FetchActiveEntity returns the active entity fact for the uniqueness key
// (category, key, entityType, entityID), or nil.
func (db *DB) FetchActiveEntity(ctx context.Context, category, key, entityType, entityID string) (*Fact, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE category = ? AND key = ? AND entity_type = ? AND entity_id = ? AND is_active = 1
		ORDER BY created_at ASC LIMIT 1
	`, category, key, entityType, entityID)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch active entity: %w", err)
	}
	return f, nil
}

// FetchAllActive returns every active user fact, newest first.
func (db *DB) FetchAllActive(ctx context.Context) ([]*Fact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE is_active = 1 AND entity_type IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch all active: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FetchActiveEntities returns every active entity fact, newest first.
func (db *DB) FetchActiveEntities(ctx context.Context) ([]*Fact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE is_active = 1 AND entity_type IS NOT NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch active entities: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FetchActiveByCategory returns active user facts in a category, newest first.
func (db *DB) FetchActiveByCategory(ctx context.Context, category string) ([]*Fact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE category = ? AND is_active = 1 AND entity_type IS NULL
		ORDER BY created_at DESC
	`, category)
	if err != nil {
		return nil, fmt.Errorf("fetch active by category: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// DeactivateFact retires a fact logically. Already-inactive facts are a no-op.
func (db *DB) DeactivateFact(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, "UPDATE facts SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deactivate fact: %w", err)
	}
	return nil
}

// TouchFact records a reference to a fact: bumps times_referenced and last_used_at.
func (db *DB) TouchFact(ctx context.Context, id string) error {
	now := time.Now().Unix()
	_, err := db.ExecContext(ctx, `
		UPDATE facts SET times_referenced = times_referenced + 1, last_used_at = ?
		WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch fact: %w", err)
	}
	return nil
}

// RecordUse tracks whether a referenced fact turned out to be accurate.
func (db *DB) RecordUse(ctx context.Context, id string, success bool) error {
	col := "failed_uses"
	if success {
		col = "successful_uses"
	}
	_, err := db.ExecContext(ctx, "UPDATE facts SET "+col+" = "+col+" + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("record use: %w", err)
	}
	return nil
}

// SetFeedback stores explicit user feedback on a fact. Empty clears it.
func (db *DB) SetFeedback(ctx context.Context, id, feedback string) error {
	_, err := db.ExecContext(ctx, "UPDATE facts SET user_feedback = ? WHERE id = ?", nullable(feedback), id)
	if err != nil {
		return fmt.Errorf("set feedback: %w", err)
	}
	return nil
}

// AppendVersion records a prior value in the fact's version history.
func (db *DB) AppendVersion(ctx context.Context, factID, oldValue string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO fact_versions (fact_id, old_value, changed_at) VALUES (?, ?, ?)
	`, factID, oldValue, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append version: %w", err)
	}
	return nil
}

// GetVersions returns a fact's version history, oldest first.
func (db *DB) GetVersions(ctx context.Context, factID string) ([]FactVersion, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, fact_id, old_value, changed_at FROM fact_versions
		WHERE fact_id = ? ORDER BY changed_at ASC, id ASC
	`, factID)
	if err != nil {
		return nil, fmt.Errorf("get versions: %w", err)
	}
	defer rows.Close()

	var versions []FactVersion
	for rows.Next() {
		var v FactVersion
		if err := rows.Scan(&v.ID, &v.FactID, &v.OldValue, &v.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CountActive returns the number of active facts (user and entity).
func (db *DB) CountActive(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts WHERE is_active = 1").Scan(&n)
	return n, err
}

// DeleteAllFacts physically removes every fact, version, and vector. This is
// the one hard-delete operation; everything else retires facts logically.
func (db *DB) DeleteAllFacts(ctx context.Context) error {
	for _, stmt := range []string{
		"DELETE FROM fact_vectors",
		"DELETE FROM fact_versions",
		"DELETE FROM facts",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("delete all facts: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*Fact, error) {
	var f Fact
	var etype, eid, ename, feedback sql.NullString
	var lastUsed sql.NullInt64
	var convIDs string
	var active int

	err := row.Scan(&f.ID, &f.Category, &f.Key, &f.Value, &f.Confidence, &f.Source,
		&etype, &eid, &ename,
		&f.TimesReferenced, &f.SuccessfulUses, &f.FailedUses, &feedback, &lastUsed,
		&convIDs, &active, &f.CreatedAt)
	if err != nil {
		return nil, err
	}

	if etype.Valid {
		f.Entity = &EntityRef{Type: etype.String, ID: eid.String, Name: ename.String}
	}
	f.UserFeedback = feedback.String
	if lastUsed.Valid {
		f.LastUsedAt = &lastUsed.Int64
	}
	f.IsActive = active != 0
	if convIDs != "" {
		if err := json.Unmarshal([]byte(convIDs), &f.ConversationIDs); err != nil {
			return nil, fmt.Errorf("decode conversation ids: %w", err)
		}
	}
	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]*Fact, error) {
	var facts []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
