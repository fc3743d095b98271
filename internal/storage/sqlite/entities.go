package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// SaveEntity upserts an entity keyed by id. In one transaction it writes
// the row, invalidates any stale embedding, and appends a manifest event.
// After the commit it refreshes the FTS index and fires entity hooks with
// the committed payload.
func (s *Store) SaveEntity(ctx context.Context, id, entityType string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return storageErr("encode entity data", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, type, data_json)
			VALUES (?, ?, json(?))
			ON CONFLICT(id) DO UPDATE SET
				type = excluded.type,
				data_json = excluded.data_json
		`, id, entityType, string(payload)); err != nil {
			return storageErr("save entity", err)
		}

		// Embeddings are per-entity truth: any content change invalidates
		// the stored vector.
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE entity_id = ?`, id); err != nil {
			return storageErr("invalidate embedding", err)
		}

		return s.appendEventTx(ctx, tx, &types.EventRecord{
			ID:   "event-" + uuid.NewString(),
			Type: types.EventManifest,
			Op:   types.OpSuccess,
			Payload: map[string]any{
				"entity_id":   id,
				"entity_type": entityType,
			},
		})
	})
	if err != nil {
		return err
	}

	s.indexEntityOpportunistic(ctx, id, entityType, data)
	s.fireEntityHooks(id, entityType, data)
	return nil
}

// LoadEntity returns the entity or nil when absent.
func (s *Store) LoadEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, data_json FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// ListEntitiesByType returns every entity carrying the given type tag, in
// the order the store returns them.
func (s *Store) ListEntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, data_json FROM entities WHERE type = ? ORDER BY id`, entityType)
	if err != nil {
		return nil, storageErr("list entities", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		var id, typ, dataJSON string
		if err := rows.Scan(&id, &typ, &dataJSON); err != nil {
			return nil, storageErr("scan entity", err)
		}
		entity, err := decodeEntity(id, typ, dataJSON)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// CountEntitiesByType returns a map of type tag to live entity count.
func (s *Store) CountEntitiesByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM entities GROUP BY type`)
	if err != nil {
		return nil, storageErr("count entities", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, storageErr("scan count", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var id, typ, dataJSON string
	if err := row.Scan(&id, &typ, &dataJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storageErr("load entity", err)
	}
	return decodeEntity(id, typ, dataJSON)
}

func decodeEntity(id, typ, dataJSON string) (*types.Entity, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, storageErr(fmt.Sprintf("decode entity %s", id), err)
	}
	return &types.Entity{ID: id, Type: typ, Data: data}, nil
}
