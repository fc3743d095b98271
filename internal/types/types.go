// Package types defines the core data structures shared across the CVM:
// entities, bonds, events, states, and the protocol graph schema.
package types

import (
	"encoding/json"
	"time"
)

// Entity type tags the kernel recognizes. The store itself is generic;
// every other type value is opaque application data.
const (
	TypePrimitive    = "primitive"
	TypeProtocol     = "protocol"
	TypeRelationship = "relationship"
)

// OutputSink receives user-visible output from primitives. The sink is the
// only display channel handlers may use; everything else is data.
type OutputSink func(string)

// Entity is a typed row with an opaque JSON payload.
type Entity struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Bond is a directed, typed, confidence-weighted relation between entities.
// Every bond is also mirrored as a "relationship" entity so bonds can be
// subjects of other bonds.
type Bond struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	FromID     string         `json:"from_id"`
	ToID       string         `json:"to_id"`
	Status     string         `json:"status"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
}

// Bond status values.
const (
	BondStatusForming   = "forming"
	BondStatusActive    = "active"
	BondStatusStressed  = "stressed"
	BondStatusDissolved = "dissolved"
)

// Constellation is the full bond network around one entity.
type Constellation struct {
	EntityID string  `json:"entity_id"`
	Outgoing []*Bond `json:"outgoing"`
	Incoming []*Bond `json:"incoming"`
}

// ConfidenceUpdate reports a bond confidence change.
type ConfidenceUpdate struct {
	Previous float64 `json:"previous_confidence"`
	New      float64 `json:"new_confidence"`
}

// EventType classifies event log entries.
type EventType string

const (
	EventManifest      EventType = "manifest"
	EventBond          EventType = "bond"
	EventSignal        EventType = "signal"
	EventProtocolSpawn EventType = "protocol_spawn"
	EventProtocolStep  EventType = "protocol_step"
)

// EventOp is the outcome recorded with an event.
type EventOp string

const (
	OpSuccess EventOp = "success"
	OpError   EventOp = "error"
	OpRetry   EventOp = "retry"
	OpSuspend EventOp = "suspend"
	OpResume  EventOp = "resume"
)

// EventClock orders events within one actor. No global ordering is promised.
type EventClock struct {
	Actor string `json:"actor"`
	Seq   int64  `json:"seq"`
}

// EventRecord is one append-only event log entry.
type EventRecord struct {
	ID        string         `json:"id"`
	Clock     EventClock     `json:"clock"`
	Type      EventType      `json:"type"`
	Op        EventOp        `json:"op"`
	PersonaID string         `json:"persona_id,omitempty"`
	Signature string         `json:"signature,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// EmbeddingRecord is the one canonical embedding for an entity.
// Vector is little-endian packed float32, 4*Dimension bytes, no header.
type EmbeddingRecord struct {
	EntityID  string    `json:"entity_id"`
	ModelName string    `json:"model_name"`
	Vector    []byte    `json:"vector"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArchiveRecord is a composted entity or bond. Nothing is deleted in place;
// archive and resurrect move rows between the live and archive tables.
type ArchiveRecord struct {
	ID           string         `json:"id"`
	OriginalID   string         `json:"original_id"`
	OriginalType string         `json:"original_type"`
	Data         map[string]any `json:"data"`
	ArchivedAt   time.Time      `json:"archived_at"`
	ArchivedBy   string         `json:"archived_by,omitempty"`
	Reason       string         `json:"reason"`
	LearningID   string         `json:"learning_id,omitempty"`
}

// SearchHit is one full-text search result.
type SearchHit struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// DecodeData unmarshals an entity's data payload into dst.
func (e *Entity) DecodeData(dst any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
