package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord holds an embedding for a fact.
type VectorRecord struct {
	FactID     string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for a fact, tagged with the
// model that produced it.
func (db *DB) SaveVector(ctx context.Context, v *VectorRecord) error {
	if v.CreatedAt == 0 {
		v.CreatedAt = time.Now().Unix()
	}
	if v.Dimensions == 0 {
		v.Dimensions = len(v.Embedding)
	}
	blob := encodeEmbedding(v.Embedding)

	_, err := db.ExecContext(ctx, `
		INSERT INTO fact_vectors (fact_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fact_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, v.FactID, blob, v.Model, v.Dimensions, v.CreatedAt,
		blob, v.Model, v.Dimensions, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for a fact, or nil if not found.
func (db *DB) GetVector(ctx context.Context, factID string) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRowContext(ctx, `
		SELECT fact_id, embedding, model, dimensions, created_at
		FROM fact_vectors WHERE fact_id = ?
	`, factID).Scan(&v.FactID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// AllVectors returns all stored vector records.
func (db *DB) AllVectors(ctx context.Context) ([]VectorRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT fact_id, embedding, model, dimensions, created_at
		FROM fact_vectors
	`)
	if err != nil {
		return nil, fmt.Errorf("all vectors: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.FactID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// DeleteVector removes the embedding for a fact.
func (db *DB) DeleteVector(ctx context.Context, factID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM fact_vectors WHERE fact_id = ?", factID)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}
