package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/liminalcommons/chora-cvm/internal/types"
)

// SaveEmbedding stores the canonical vector for an entity. Vector bytes are
// little-endian packed float32, 4*dimension bytes, no header. The row is
// deleted whenever the parent entity is saved (and cascades when the entity
// is archived).
func (s *Store) SaveEmbedding(ctx context.Context, entityID, modelName string, vector []byte, dimension int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (entity_id, model_name, vector, dimension, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_id) DO UPDATE SET
				model_name = excluded.model_name,
				vector = excluded.vector,
				dimension = excluded.dimension,
				updated_at = excluded.updated_at
		`, entityID, modelName, vector, dimension, now, now); err != nil {
			return storageErr("save embedding", err)
		}
		return nil
	})
}

// GetEmbedding returns the embedding for an entity, or nil when absent.
func (s *Store) GetEmbedding(ctx context.Context, entityID string) (*types.EmbeddingRecord, error) {
	var rec types.EmbeddingRecord
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_id, model_name, vector, dimension, created_at, updated_at
		FROM embeddings WHERE entity_id = ?`, entityID).
		Scan(&rec.EntityID, &rec.ModelName, &rec.Vector, &rec.Dimension, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load embedding", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// DeleteEmbedding removes the embedding for an entity, reporting whether a
// row existed.
func (s *Store) DeleteEmbedding(ctx context.Context, entityID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE entity_id = ?`, entityID)
	if err != nil {
		return false, storageErr("delete embedding", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete embedding", err)
	}
	return n > 0, nil
}

// HasEmbedding reports whether an entity has a stored embedding.
func (s *Store) HasEmbedding(ctx context.Context, entityID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM embeddings WHERE entity_id = ? LIMIT 1`, entityID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr("check embedding", err)
	}
	return true, nil
}

// GetAllEmbeddings returns stored embeddings, optionally filtered by model
// and capped by limit (0 means no cap). Used for batch work like clustering.
func (s *Store) GetAllEmbeddings(ctx context.Context, modelName string, limit int) ([]*types.EmbeddingRecord, error) {
	query := `SELECT entity_id, model_name, vector, dimension, created_at, updated_at FROM embeddings`
	var args []any
	if modelName != "" {
		query += ` WHERE model_name = ?`
		args = append(args, modelName)
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list embeddings", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.EmbeddingRecord
	for rows.Next() {
		var rec types.EmbeddingRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.EntityID, &rec.ModelName, &rec.Vector,
			&rec.Dimension, &createdAt, &updatedAt); err != nil {
			return nil, storageErr("scan embedding", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
