package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "facts: user and entity knowledge records",
		SQL: `
CREATE TABLE facts (
    id               TEXT PRIMARY KEY,
    category         TEXT NOT NULL CHECK (category IN (
        'personalInfo', 'relationships', 'lifestyle', 'values', 'fears',
        'goals', 'preferences', 'memories', 'experiences', 'challenges',
        'habits', 'triggers', 'currentSituation', 'recentEvents', 'other')),
    key              TEXT NOT NULL,
    value            TEXT NOT NULL,
    confidence       REAL NOT NULL DEFAULT 0.5,
    source           TEXT NOT NULL DEFAULT 'inferred',

    -- Entity scoping; all NULL for user facts
    entity_type      TEXT,
    entity_id        TEXT,
    entity_name      TEXT,

    -- Usage tracking
    times_referenced INTEGER NOT NULL DEFAULT 0,
    successful_uses  INTEGER NOT NULL DEFAULT 0,
    failed_uses      INTEGER NOT NULL DEFAULT 0,
    user_feedback    TEXT,
    last_used_at     INTEGER,

    -- Provenance
    conversation_ids TEXT NOT NULL DEFAULT '[]',

    is_active        INTEGER NOT NULL DEFAULT 1,
    created_at       INTEGER NOT NULL
);

CREATE INDEX idx_facts_key      ON facts(category, key);
CREATE INDEX idx_facts_active   ON facts(is_active);
CREATE INDEX idx_facts_entity   ON facts(entity_type, entity_id);
CREATE INDEX idx_facts_category ON facts(category);
`,
	},
	{
		Version:     2,
		Description: "fact_versions: prior values kept on conflict resolution",
		SQL: `
CREATE TABLE fact_versions (
    id         INTEGER PRIMARY KEY,
    fact_id    TEXT NOT NULL,
    old_value  TEXT NOT NULL,
    changed_at INTEGER NOT NULL,
    FOREIGN KEY (fact_id) REFERENCES facts(id) ON DELETE CASCADE
);

CREATE INDEX idx_versions_fact ON fact_versions(fact_id);
`,
	},
	{
		Version:     3,
		Description: "fact_vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE fact_vectors (
    fact_id    TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (fact_id) REFERENCES facts(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     4,
		Description: "settings: persisted privacy gate state",
		SQL: `
CREATE TABLE settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
