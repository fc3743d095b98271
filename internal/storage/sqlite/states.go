package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/liminalcommons/chora-cvm/internal/types"
)

// SaveState upserts a protocol run snapshot.
func (s *Store) SaveState(ctx context.Context, state *types.State) error {
	dataJSON, err := json.Marshal(state.Data)
	if err != nil {
		return storageErr("encode state data", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO states (id, protocol_id, status, data_json)
			VALUES (?, ?, ?, json(?))
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				data_json = excluded.data_json
		`, state.ID, state.Data.ProtocolID, string(state.Status), string(dataJSON)); err != nil {
			return storageErr("save state", err)
		}
		return nil
	})
}

// LoadState returns a state snapshot by id, or nil when absent.
func (s *Store) LoadState(ctx context.Context, id string) (*types.State, error) {
	var state types.State
	var status, dataJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, data_json FROM states WHERE id = ?`, id).
		Scan(&state.ID, &status, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load state", err)
	}
	state.Status = types.StateStatus(status)
	if err := json.Unmarshal([]byte(dataJSON), &state.Data); err != nil {
		return nil, storageErr("decode state data", err)
	}
	return &state, nil
}
