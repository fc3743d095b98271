// Package engine is the single dispatch surface of the CVM. Every outer
// interface (CLI, HTTP, worker) converges on Engine.Dispatch; a protocol
// written to the database becomes invocable everywhere at once.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/liminalcommons/chora-cvm/internal/registry"
	"github.com/liminalcommons/chora-cvm/internal/runner"
	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/storage/sqlite"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

var dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cvm_dispatch_total",
	Help: "Dispatch calls by capability kind and outcome.",
}, []string{"kind", "outcome"})

// CapabilityKind separates the two invocable kinds.
type CapabilityKind string

const (
	KindProtocol  CapabilityKind = "protocol"
	KindPrimitive CapabilityKind = "primitive"
)

// Capability is one discoverable operation.
type Capability struct {
	ID          string          `json:"id"`
	Kind        CapabilityKind  `json:"kind"`
	Description string          `json:"description"`
	Interface   types.Interface `json:"interface"`
}

// DispatchResult is the uniform envelope every interface renders.
type DispatchResult struct {
	OK           bool           `json:"ok"`
	Data         map[string]any `json:"data"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// DispatchOptions carries per-call identity and output routing.
type DispatchOptions struct {
	PersonaID string
	StateID   string
	Sink      types.OutputSink
}

// Engine resolves intents and executes them. Store and registry hydrate
// lazily on first use so constructing an engine is free.
type Engine struct {
	dbPath   string
	symbols  map[string]registry.Handler
	maxDepth int

	mu       sync.Mutex
	store    storage.Store
	reg      *registry.Registry
	run      *runner.Runner
	hydrated bool
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithMaxDepth sets the protocol call-stack depth limit the runner
// enforces. Non-positive values keep the runner's default.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

// New builds an engine over a database path and handler symbol table.
func New(dbPath string, symbols map[string]registry.Handler, opts ...Option) *Engine {
	e := &Engine{dbPath: dbPath, symbols: symbols}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewWithStore wires an engine over an already-open store, hydrating the
// registry immediately. Used by tests and embedders that manage the store
// lifecycle themselves.
func NewWithStore(ctx context.Context, store storage.Store, symbols map[string]registry.Handler, opts ...Option) (*Engine, error) {
	e := &Engine{dbPath: store.Path(), symbols: symbols}
	for _, opt := range opts {
		opt(e)
	}
	e.store = store
	e.reg = registry.New(symbols)
	if _, err := e.reg.LoadFromStore(ctx, store); err != nil {
		return nil, err
	}
	e.run = e.newRunner(store, e.reg)
	e.hydrated = true
	return e, nil
}

func (e *Engine) newRunner(store storage.Store, reg *registry.Registry) *runner.Runner {
	run := runner.New(store, reg)
	run.SetMaxDepth(e.maxDepth)
	return run
}

func (e *Engine) ensureHydrated(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hydrated {
		return nil
	}

	if _, err := os.Stat(e.dbPath); err != nil {
		return types.NewError(types.ErrDatabaseNotFound, "database not found: %s", e.dbPath)
	}

	store, err := sqlite.New(ctx, e.dbPath)
	if err != nil {
		return err
	}
	reg := registry.New(e.symbols)
	if _, err := reg.LoadFromStore(ctx, store); err != nil {
		store.Close()
		return err
	}

	e.store = store
	e.reg = reg
	e.run = e.newRunner(store, reg)
	e.hydrated = true
	return nil
}

// Store exposes the hydrated store for interfaces that read directly
// (show, search, status).
func (e *Engine) Store(ctx context.Context) (storage.Store, error) {
	if err := e.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	return e.store, nil
}

// Registry exposes the hydrated primitive registry.
func (e *Engine) Registry(ctx context.Context) (*registry.Registry, error) {
	if err := e.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	return e.reg, nil
}

// ListCapabilities enumerates every protocol and primitive in the
// database, protocols first, each group ordered by id.
func (e *Engine) ListCapabilities(ctx context.Context) ([]Capability, error) {
	if err := e.ensureHydrated(ctx); err != nil {
		return nil, err
	}

	var capabilities []Capability

	protocols, err := e.store.ListEntitiesByType(ctx, types.TypeProtocol)
	if err != nil {
		return nil, err
	}
	for _, entity := range protocols {
		protocol, err := types.ParseProtocol(entity)
		if err != nil {
			continue // malformed rows stay out of the surface
		}
		description := protocol.Data.Interface.Description
		if description == "" {
			description = fmt.Sprintf("Protocol %s", entity.ID)
		}
		capabilities = append(capabilities, Capability{
			ID:          entity.ID,
			Kind:        KindProtocol,
			Description: description,
			Interface:   protocol.Data.Interface,
		})
	}

	for _, rec := range e.reg.List() {
		description := rec.Primitive.Data.Description
		if description == "" {
			description = fmt.Sprintf("Primitive %s", rec.Primitive.ID)
		}
		capabilities = append(capabilities, Capability{
			ID:          rec.Primitive.ID,
			Kind:        KindPrimitive,
			Description: description,
			Interface:   rec.Primitive.Data.Interface,
		})
	}

	return capabilities, nil
}

// ResolveIntent maps an intent string to a capability, or nil when nothing
// matches. Resolution order: exact id, then short name. On a short-name
// collision the protocol wins; primitives additionally answer to the
// underscore variant of their short name and to an underscore-prefixed
// escape (_sum) that stays reachable even when a protocol shadows them.
func (e *Engine) ResolveIntent(ctx context.Context, intent string) (*Capability, error) {
	capabilities, err := e.ListCapabilities(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Capability, len(capabilities))
	byShort := make(map[string]*Capability)
	for i := range capabilities {
		cap := &capabilities[i]
		byID[cap.ID] = cap
		switch cap.Kind {
		case KindProtocol:
			if strings.HasPrefix(cap.ID, types.ProtocolPrefix) {
				byShort[types.ShortName(cap.ID)] = cap
			}
		case KindPrimitive:
			if strings.HasPrefix(cap.ID, types.PrimitivePrefix) {
				short := types.ShortName(cap.ID)
				if _, taken := byShort[short]; !taken {
					byShort[short] = cap
				}
				underscored := strings.ReplaceAll(short, "-", "_")
				if _, taken := byShort[underscored]; !taken {
					byShort[underscored] = cap
				}
				if _, taken := byShort["_"+short]; !taken {
					byShort["_"+short] = cap
				}
			}
		}
	}

	if cap, ok := byID[intent]; ok {
		return cap, nil
	}
	if cap, ok := byShort[intent]; ok {
		return cap, nil
	}
	return nil, nil
}

// Dispatch resolves an intent and executes it, returning the uniform
// result envelope. Dispatch never returns a Go error: every failure is a
// structured (kind, message) pair in the result.
func (e *Engine) Dispatch(ctx context.Context, intent string, inputs map[string]any, opts DispatchOptions) DispatchResult {
	if inputs == nil {
		inputs = map[string]any{}
	}

	capability, err := e.ResolveIntent(ctx, intent)
	if err != nil {
		return e.errResult("none", err, types.ErrStorage)
	}
	if capability == nil {
		dispatchTotal.WithLabelValues("none", "error").Inc()
		return DispatchResult{
			OK:           false,
			ErrorKind:    types.ErrIntentNotFound,
			ErrorMessage: fmt.Sprintf("could not resolve intent: %s", intent),
		}
	}

	if capability.Kind == KindProtocol {
		return e.dispatchProtocol(ctx, capability.ID, inputs, opts)
	}
	return e.dispatchPrimitive(ctx, capability.ID, inputs, opts)
}

func (e *Engine) dispatchProtocol(ctx context.Context, protocolID string, inputs map[string]any, opts DispatchOptions) DispatchResult {
	result, err := e.run.Execute(ctx, protocolID, inputs, runner.Options{
		StateID:   opts.StateID,
		PersonaID: opts.PersonaID,
		Sink:      opts.Sink,
	})
	if err != nil {
		return e.errResult(string(KindProtocol), err, types.ErrRuntime)
	}
	dispatchTotal.WithLabelValues(string(KindProtocol), "ok").Inc()
	return DispatchResult{OK: true, Data: result}
}

func (e *Engine) dispatchPrimitive(ctx context.Context, primitiveID string, inputs map[string]any, opts DispatchOptions) DispatchResult {
	ec := &storage.ExecutionContext{
		DBPath:    e.dbPath,
		Store:     e.store,
		PersonaID: opts.PersonaID,
		StateID:   opts.StateID,
		Ctx:       ctx,
		Sink:      opts.Sink,
	}
	result, err := e.reg.Call(ec, primitiveID, inputs)
	if err != nil {
		return e.errResult(string(KindPrimitive), err, types.ErrPrimitiveExecution)
	}
	dispatchTotal.WithLabelValues(string(KindPrimitive), "ok").Inc()
	return DispatchResult{OK: true, Data: result}
}

func (e *Engine) errResult(kind string, err error, fallback string) DispatchResult {
	dispatchTotal.WithLabelValues(kind, "error").Inc()
	message := err.Error()
	if cvmErr, ok := err.(*types.Error); ok {
		message = cvmErr.Message
	}
	return DispatchResult{
		OK:           false,
		ErrorKind:    types.KindOf(err, fallback),
		ErrorMessage: message,
	}
}

// Close releases the store. The engine re-hydrates on next use.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hydrated {
		return nil
	}
	e.hydrated = false
	e.reg = nil
	e.run = nil
	store := e.store
	e.store = nil
	return store.Close()
}
