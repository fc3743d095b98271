// Package storage defines the interface for the CVM graph store backend.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/liminalcommons/chora-cvm/internal/types"
)

// ErrDBNotInitialized is returned when a store feature is used before the
// database has been created.
var ErrDBNotInitialized = errors.New("database not initialized")

// EntityHook observes entity saves. Hooks fire exactly once per successful
// save, strictly after the commit, with the committed payload. A hook
// failure never rolls back the commit and never affects other hooks.
type EntityHook func(entityID, entityType string, data map[string]any)

// Store is the durable typed graph: entities, bonds, events, state
// snapshots, embeddings, archive, and full-text search.
//
// Every write is atomic per operation. Reads return nil on missing rows.
// Write failures carry a structured kind (storage_error or
// constraint_violation), never a raw backend error.
type Store interface {
	// Entities
	SaveEntity(ctx context.Context, id, entityType string, data map[string]any) error
	LoadEntity(ctx context.Context, id string) (*types.Entity, error)
	ListEntitiesByType(ctx context.Context, entityType string) ([]*types.Entity, error)
	CountEntitiesByType(ctx context.Context) (map[string]int, error)
	SearchEntities(ctx context.Context, query string, limit int) ([]*types.SearchHit, error)

	// Bonds
	SaveBond(ctx context.Context, bond *types.Bond) error
	GetBond(ctx context.Context, id string) (*types.Bond, error)
	GetBondsFrom(ctx context.Context, entityID string) ([]*types.Bond, error)
	GetBondsTo(ctx context.Context, entityID string) ([]*types.Bond, error)
	GetConstellation(ctx context.Context, entityID string) (*types.Constellation, error)
	UpdateBondConfidence(ctx context.Context, id string, confidence float64) (*types.ConfidenceUpdate, error)

	// Event log
	AppendEvent(ctx context.Context, event *types.EventRecord) error
	IterEvents(ctx context.Context, fn func(*types.EventRecord) error) error

	// State snapshots
	SaveState(ctx context.Context, state *types.State) error
	LoadState(ctx context.Context, id string) (*types.State, error)

	// Embeddings
	SaveEmbedding(ctx context.Context, entityID, modelName string, vector []byte, dimension int) error
	GetEmbedding(ctx context.Context, entityID string) (*types.EmbeddingRecord, error)
	DeleteEmbedding(ctx context.Context, entityID string) (bool, error)
	HasEmbedding(ctx context.Context, entityID string) (bool, error)
	GetAllEmbeddings(ctx context.Context, modelName string, limit int) ([]*types.EmbeddingRecord, error)

	// Archive
	ArchiveEntity(ctx context.Context, entityID, reason, archivedBy, learningID string) (*types.ArchiveRecord, error)
	ArchiveBond(ctx context.Context, bondID, reason, archivedBy string) (*types.ArchiveRecord, error)
	ResurrectEntity(ctx context.Context, archiveID string) (*types.Entity, error)
	GetArchived(ctx context.Context, originalID, originalType string) ([]*types.ArchiveRecord, error)

	// FTS
	IndexEntity(ctx context.Context, id, entityType, title, body string) error
	FTSEnabled() bool

	// Hooks
	AddEntityHook(hook EntityHook) int
	RemoveEntityHook(handle int)

	// Lifecycle
	Path() string
	Close() error
}

// ExecutionContext is injected into primitive handlers during a run. It
// carries the shared store handle, the database path, and the run identity,
// so primitives never open their own connections. The context is not
// serialized with the state.
type ExecutionContext struct {
	DBPath    string
	Store     Store
	PersonaID string
	StateID   string

	// Ctx is the run's cancellation context. Nil means Background.
	Ctx context.Context

	// Sink is the only user-visible output channel for handlers
	// (the Membrane). Nil falls back to stdout.
	Sink types.OutputSink
}

// Context returns the run context, or Background when unset.
func (c *ExecutionContext) Context() context.Context {
	if c != nil && c.Ctx != nil {
		return c.Ctx
	}
	return context.Background()
}

// Emit sends content to the configured sink, or stdout as fallback.
func (c *ExecutionContext) Emit(content string) {
	if c != nil && c.Sink != nil {
		c.Sink(content)
		return
	}
	fmt.Println(content)
}
