package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertEmbedding replaces the stored vector for a file
func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, fileID int64, model string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	query := `
		INSERT INTO embeddings (file_id, model, dimension, vector, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			model = excluded.model,
			dimension = excluded.dimension,
			vector = excluded.vector,
			updated_at = excluded.updated_at
	`
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, fileID, model, len(vector), serializeVector(vector), formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to upsert embedding: %w", err)
		}
		return nil
	})
}

// GetAllEmbeddings returns every stored vector
func (s *SQLiteStorage) GetAllEmbeddings(ctx context.Context) ([]EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_id, model, dimension, vector, updated_at FROM embeddings ORDER BY file_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []EmbeddingRecord
	for rows.Next() {
		var (
			rec     EmbeddingRecord
			blob    []byte
			updated sql.NullString
		)
		if err := rows.Scan(&rec.FileID, &rec.Model, &rec.Dimension, &blob, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		rec.Vector = deserializeVector(blob)
		rec.UpdatedAt = parseTime(updated.String)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SearchVector returns the files whose vectors are most similar to query
func (s *SQLiteStorage) SearchVector(ctx context.Context, query []float32, limit int) ([]VectorResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	return searchVector(ctx, s.db, query, limit)
}
