// Package registry maps primitive entities to their executable handlers.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// Handler is the executable body of a primitive. Handlers receive the
// execution context and the already-resolved argument map, and return the
// result map recorded in protocol memory.
type Handler func(ctx *storage.ExecutionContext, args map[string]any) (map[string]any, error)

// ProtocolInvoker runs a sub-protocol on behalf of a CALL node. The runner
// installs one on the registry at startup; handlers that need to dispatch
// protocols go through it rather than importing the runner.
type ProtocolInvoker func(ctx context.Context, ec *storage.ExecutionContext, protocolID string, inputs map[string]any) (map[string]any, error)

// Record is one registered primitive. Handler is nil when the handler_ref
// did not resolve against the symbol table; the record stays listed so the
// capability remains discoverable, but calling it fails with
// primitive_not_loaded.
type Record struct {
	Primitive *types.Primitive
	Handler   Handler
}

// Registry resolves primitive ids to handlers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]Handler
	records map[string]*Record
	invoker ProtocolInvoker
}

// New builds a registry over the given handler symbol table. The table maps
// handler_ref strings (e.g. "std.sys_log") to Go functions.
func New(symbols map[string]Handler) *Registry {
	if symbols == nil {
		symbols = map[string]Handler{}
	}
	return &Registry{
		symbols: symbols,
		records: make(map[string]*Record),
	}
}

// RegisterSymbol adds or replaces one entry of the symbol table. Primitives
// registered afterwards resolve against the updated table; existing records
// are not rebound.
func (r *Registry) RegisterSymbol(ref string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[ref] = handler
}

// RegisterFromEntity hydrates a primitive entity and registers it. A
// handler_ref missing from the symbol table registers the record with a nil
// handler rather than failing, so a database seeded with capabilities this
// build does not carry still lists them.
func (r *Registry) RegisterFromEntity(e *types.Entity) (*Record, error) {
	prim, err := types.ParsePrimitive(e)
	if err != nil {
		return nil, types.NewError(types.ErrMapping, "%v", err)
	}
	return r.Register(prim), nil
}

// Register adds a hydrated primitive, resolving its handler_ref.
func (r *Registry) Register(prim *types.Primitive) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Record{
		Primitive: prim,
		Handler:   r.symbols[prim.Data.HandlerRef],
	}
	r.records[prim.ID] = rec
	return rec
}

// LoadFromStore registers every primitive entity in the store. Entities
// that fail to hydrate are skipped and reported together after the scan.
func (r *Registry) LoadFromStore(ctx context.Context, store storage.Store) (int, error) {
	entities, err := store.ListEntitiesByType(ctx, types.TypePrimitive)
	if err != nil {
		return 0, err
	}
	var firstErr error
	loaded := 0
	for _, e := range entities {
		if _, err := r.RegisterFromEntity(e); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to register %s: %w", e.ID, err)
			}
			continue
		}
		loaded++
	}
	return loaded, firstErr
}

// Get returns the record for a primitive id.
func (r *Registry) Get(id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, types.NewError(types.ErrPrimitiveNotFound, "primitive %s is not registered", id)
	}
	return rec, nil
}

// List returns all registered records ordered by primitive id.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Primitive.ID < records[j].Primitive.ID
	})
	return records
}

// Call executes a registered primitive. Handler errors surface as
// primitive_execution_error unless the handler already returned a
// structured kind; a panicking handler is recovered as runtime_error.
func (r *Registry) Call(ec *storage.ExecutionContext, id string, args map[string]any) (result map[string]any, err error) {
	rec, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Handler == nil {
		return nil, types.NewError(types.ErrPrimitiveNotLoaded,
			"primitive %s has no handler for ref %q", id, rec.Primitive.Data.HandlerRef)
	}

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = types.NewError(types.ErrRuntime, "primitive %s panicked: %v", id, p)
		}
	}()

	result, err = rec.Handler(ec, args)
	if err != nil {
		if _, ok := err.(*types.Error); ok {
			return nil, err
		}
		return nil, types.NewError(types.ErrPrimitiveExecution, "primitive %s failed: %v", id, err)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// SetProtocolInvoker installs the sub-protocol dispatch hook.
func (r *Registry) SetProtocolInvoker(invoker ProtocolInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoker = invoker
}

// InvokeProtocol dispatches a protocol through the installed hook.
func (r *Registry) InvokeProtocol(ctx context.Context, ec *storage.ExecutionContext, protocolID string, inputs map[string]any) (map[string]any, error) {
	r.mu.RLock()
	invoker := r.invoker
	r.mu.RUnlock()
	if invoker == nil {
		return nil, types.NewError(types.ErrNoInvoker,
			"no protocol invoker installed for %s", protocolID)
	}
	return invoker(ctx, ec, protocolID, inputs)
}
