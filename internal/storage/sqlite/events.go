package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/liminalcommons/chora-cvm/internal/types"
)

// AppendEvent writes one event log entry. When the clock is unset the
// store assigns its own actor and the next per-actor sequence number
// inside the transaction, keeping ordering monotonic per actor.
func (s *Store) AppendEvent(ctx context.Context, event *types.EventRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.appendEventTx(ctx, tx, event)
	})
}

func (s *Store) appendEventTx(ctx context.Context, tx *sql.Tx, event *types.EventRecord) error {
	if event.Clock.Actor == "" {
		event.Clock.Actor = s.actor
	}
	if event.Clock.Seq == 0 {
		var maxSeq sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MAX(clock_seq) FROM events WHERE clock_actor = ?`,
			event.Clock.Actor).Scan(&maxSeq)
		if err != nil {
			return storageErr("read event clock", err)
		}
		event.Clock.Seq = maxSeq.Int64 + 1
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return storageErr("encode event payload", err)
	}

	var personaID, signature any
	if event.PersonaID != "" {
		personaID = event.PersonaID
	}
	if event.Signature != "" {
		signature = event.Signature
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, clock_actor, clock_seq, type, op, persona_id, signature, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, json(?))
	`, event.ID, event.Clock.Actor, event.Clock.Seq, string(event.Type), string(event.Op),
		personaID, signature, string(payload)); err != nil {
		return storageErr("append event", err)
	}
	return nil
}

// IterEvents streams the log ordered by (actor, seq), invoking fn per
// record. Iteration stops on the first error fn returns.
func (s *Store) IterEvents(ctx context.Context, fn func(*types.EventRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clock_actor, clock_seq, type, op, persona_id, signature, payload_json
		FROM events ORDER BY clock_actor, clock_seq`)
	if err != nil {
		return storageErr("iterate events", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var event types.EventRecord
		var personaID, signature sql.NullString
		var typ, op, payloadJSON string
		if err := rows.Scan(&event.ID, &event.Clock.Actor, &event.Clock.Seq,
			&typ, &op, &personaID, &signature, &payloadJSON); err != nil {
			return storageErr("scan event", err)
		}
		event.Type = types.EventType(typ)
		event.Op = types.EventOp(op)
		event.PersonaID = personaID.String
		event.Signature = signature.String
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return storageErr("decode event payload", err)
		}
		if err := fn(&event); err != nil {
			return err
		}
	}
	return rows.Err()
}
