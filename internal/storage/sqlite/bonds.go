package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// clampConfidence bounds a confidence value to [0, 1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// SaveBond upserts a bond projection row and its mirrored relationship
// entity in one transaction, plus a bond event. Confidence is clamped to
// [0, 1] on write. Bonds being subjects of other bonds relies on the
// mirror entity sharing the bond id.
func (s *Store) SaveBond(ctx context.Context, bond *types.Bond) error {
	if bond.Status == "" {
		bond.Status = types.BondStatusActive
	}
	bond.Confidence = clampConfidence(bond.Confidence)
	if bond.Data == nil {
		bond.Data = map[string]any{}
	}

	dataJSON, err := json.Marshal(bond.Data)
	if err != nil {
		return storageErr("encode bond data", err)
	}

	mirror := map[string]any{
		"title":      fmt.Sprintf("%s --%s--> %s", bond.FromID, bond.Type, bond.ToID),
		"bond_type":  bond.Type,
		"from_id":    bond.FromID,
		"to_id":      bond.ToID,
		"status":     bond.Status,
		"confidence": bond.Confidence,
	}
	for k, v := range bond.Data {
		mirror[k] = v
	}
	mirrorJSON, err := json.Marshal(mirror)
	if err != nil {
		return storageErr("encode relationship entity", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bonds (id, type, from_id, to_id, status, confidence, data_json)
			VALUES (?, ?, ?, ?, ?, ?, json(?))
			ON CONFLICT(id) DO UPDATE SET
				type = excluded.type,
				from_id = excluded.from_id,
				to_id = excluded.to_id,
				status = excluded.status,
				confidence = excluded.confidence,
				data_json = excluded.data_json
		`, bond.ID, bond.Type, bond.FromID, bond.ToID, bond.Status, bond.Confidence, string(dataJSON)); err != nil {
			return storageErr("save bond", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, type, data_json)
			VALUES (?, 'relationship', json(?))
			ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json
		`, bond.ID, string(mirrorJSON)); err != nil {
			return storageErr("save relationship entity", err)
		}

		return s.appendEventTx(ctx, tx, &types.EventRecord{
			ID:   "event-" + uuid.NewString(),
			Type: types.EventBond,
			Op:   types.OpSuccess,
			Payload: map[string]any{
				"bond_id":   bond.ID,
				"bond_type": bond.Type,
				"from_id":   bond.FromID,
				"to_id":     bond.ToID,
			},
		})
	})
}

// GetBond returns a bond by id, or nil when absent.
func (s *Store) GetBond(ctx context.Context, id string) (*types.Bond, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, from_id, to_id, status, confidence, data_json
		FROM bonds WHERE id = ?`, id)
	bond, err := scanBond(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return bond, err
}

// GetBondsFrom returns all bonds originating from an entity.
func (s *Store) GetBondsFrom(ctx context.Context, entityID string) ([]*types.Bond, error) {
	return s.queryBonds(ctx, `
		SELECT id, type, from_id, to_id, status, confidence, data_json
		FROM bonds WHERE from_id = ?`, entityID)
}

// GetBondsTo returns all bonds pointing at an entity.
func (s *Store) GetBondsTo(ctx context.Context, entityID string) ([]*types.Bond, error) {
	return s.queryBonds(ctx, `
		SELECT id, type, from_id, to_id, status, confidence, data_json
		FROM bonds WHERE to_id = ?`, entityID)
}

// GetConstellation returns the union of outgoing and incoming bonds.
func (s *Store) GetConstellation(ctx context.Context, entityID string) (*types.Constellation, error) {
	outgoing, err := s.GetBondsFrom(ctx, entityID)
	if err != nil {
		return nil, err
	}
	incoming, err := s.GetBondsTo(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return &types.Constellation{EntityID: entityID, Outgoing: outgoing, Incoming: incoming}, nil
}

// UpdateBondConfidence clamps and stores a new confidence, mirroring the
// value into the relationship entity. Returns nil when the bond is absent.
func (s *Store) UpdateBondConfidence(ctx context.Context, id string, confidence float64) (*types.ConfidenceUpdate, error) {
	var previous float64
	err := s.db.QueryRowContext(ctx,
		`SELECT confidence FROM bonds WHERE id = ?`, id).Scan(&previous)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read bond confidence", err)
	}

	confidence = clampConfidence(confidence)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE bonds SET confidence = ? WHERE id = ?`, confidence, id); err != nil {
			return storageErr("update bond confidence", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE entities
			SET data_json = json_set(data_json, '$.confidence', ?)
			WHERE id = ?`, confidence, id); err != nil {
			return storageErr("update relationship confidence", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &types.ConfidenceUpdate{Previous: previous, New: confidence}, nil
}

func (s *Store) queryBonds(ctx context.Context, query string, args ...any) ([]*types.Bond, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query bonds", err)
	}
	defer func() { _ = rows.Close() }()

	var bonds []*types.Bond
	for rows.Next() {
		bond, err := scanBond(rows)
		if err != nil {
			return nil, err
		}
		bonds = append(bonds, bond)
	}
	return bonds, rows.Err()
}

func scanBond(row rowScanner) (*types.Bond, error) {
	var bond types.Bond
	var dataJSON string
	err := row.Scan(&bond.ID, &bond.Type, &bond.FromID, &bond.ToID,
		&bond.Status, &bond.Confidence, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("scan bond", err)
	}
	if err := json.Unmarshal([]byte(dataJSON), &bond.Data); err != nil {
		return nil, storageErr("decode bond data", err)
	}
	return &bond, nil
}
