package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// ArchiveEntity composts an entity: the row moves to the archive table and
// leaves the live table in one transaction. The embedding row cascades
// away with the entity. Returns nil when the entity is absent.
func (s *Store) ArchiveEntity(ctx context.Context, entityID, reason, archivedBy, learningID string) (*types.ArchiveRecord, error) {
	entity, err := s.LoadEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}

	dataJSON, err := json.Marshal(entity.Data)
	if err != nil {
		return nil, storageErr("encode archive data", err)
	}

	archiveID := "archive-" + uuid.NewString()[:8]
	now := time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archive (id, original_id, original_type, data_json, archived_at, archived_by, reason, learning_id)
			VALUES (?, ?, ?, json(?), ?, ?, ?, ?)
		`, archiveID, entity.ID, entity.Type, string(dataJSON),
			now.Format(time.RFC3339Nano), nullable(archivedBy), reason, nullable(learningID)); err != nil {
			return storageErr("archive entity", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, entityID); err != nil {
			return storageErr("remove archived entity", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &types.ArchiveRecord{
		ID:           archiveID,
		OriginalID:   entity.ID,
		OriginalType: entity.Type,
		Data:         entity.Data,
		ArchivedAt:   now,
		ArchivedBy:   archivedBy,
		Reason:       reason,
		LearningID:   learningID,
	}, nil
}

// ArchiveBond composts a bond projection row. The mirrored relationship
// entity stays live; archiving it is a separate ArchiveEntity call.
func (s *Store) ArchiveBond(ctx context.Context, bondID, reason, archivedBy string) (*types.ArchiveRecord, error) {
	bond, err := s.GetBond(ctx, bondID)
	if err != nil {
		return nil, err
	}
	if bond == nil {
		return nil, nil
	}

	dataJSON, err := json.Marshal(bond)
	if err != nil {
		return nil, storageErr("encode archived bond", err)
	}

	archiveID := "archive-bond-" + uuid.NewString()[:8]
	now := time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archive (id, original_id, original_type, data_json, archived_at, archived_by, reason)
			VALUES (?, ?, 'bond', json(?), ?, ?, ?)
		`, archiveID, bond.ID, string(dataJSON),
			now.Format(time.RFC3339Nano), nullable(archivedBy), reason); err != nil {
			return storageErr("archive bond", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bonds WHERE id = ?`, bondID); err != nil {
			return storageErr("remove archived bond", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var data map[string]any
	_ = json.Unmarshal(dataJSON, &data)
	return &types.ArchiveRecord{
		ID:           archiveID,
		OriginalID:   bond.ID,
		OriginalType: "bond",
		Data:         data,
		ArchivedAt:   now,
		ArchivedBy:   archivedBy,
		Reason:       reason,
	}, nil
}

// ResurrectEntity reverses an archive move: the entity returns to the live
// table with its original (id, type, data) and the archive row is removed.
// Returns nil when the archive record is absent.
func (s *Store) ResurrectEntity(ctx context.Context, archiveID string) (*types.Entity, error) {
	var originalID, originalType, dataJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT original_id, original_type, data_json FROM archive WHERE id = ?`,
		archiveID).Scan(&originalID, &originalType, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load archive record", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, type, data_json) VALUES (?, ?, json(?))
		`, originalID, originalType, dataJSON); err != nil {
			return storageErr("resurrect entity", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM archive WHERE id = ?`, archiveID); err != nil {
			return storageErr("remove archive record", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeEntity(originalID, originalType, dataJSON)
}

// GetArchived returns archive records, optionally filtered by original id
// or original type, newest first.
func (s *Store) GetArchived(ctx context.Context, originalID, originalType string) ([]*types.ArchiveRecord, error) {
	query := `
		SELECT id, original_id, original_type, data_json, archived_at, archived_by, reason, learning_id
		FROM archive WHERE 1=1`
	var args []any
	if originalID != "" {
		query += ` AND original_id = ?`
		args = append(args, originalID)
	}
	if originalType != "" {
		query += ` AND original_type = ?`
		args = append(args, originalType)
	}
	query += ` ORDER BY archived_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list archive", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.ArchiveRecord
	for rows.Next() {
		var rec types.ArchiveRecord
		var dataJSON, archivedAt string
		var archivedBy, reason, learningID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.OriginalID, &rec.OriginalType,
			&dataJSON, &archivedAt, &archivedBy, &reason, &learningID); err != nil {
			return nil, storageErr("scan archive record", err)
		}
		rec.Reason = reason.String
		if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
			return nil, storageErr("decode archive data", err)
		}
		rec.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedAt)
		rec.ArchivedBy = archivedBy.String
		rec.LearningID = learningID.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
