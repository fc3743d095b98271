// Package runner drives protocol graphs to completion over a store.
package runner

import (
	"context"

	"github.com/google/uuid"
	"github.com/liminalcommons/chora-cvm/internal/registry"
	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
	"github.com/liminalcommons/chora-cvm/internal/vm"
)

// DefaultMaxDepth bounds the sub-protocol call stack unless the runner is
// configured otherwise. Hitting the limit stresses the run with
// protocol_error rather than recursing further.
const DefaultMaxDepth = 64

// Options carries the per-run identity.
type Options struct {
	// StateID pins the root state id; empty generates one.
	StateID string
	// PersonaID is recorded on events and visible to handlers.
	PersonaID string
	// Sink receives handler output; nil falls back to stdout.
	Sink types.OutputSink
}

// Runner executes protocols against one store and registry. The same
// runner serves the CLI, the HTTP surface, and the worker.
type Runner struct {
	store    storage.Store
	reg      *registry.Registry
	maxDepth int
}

func New(store storage.Store, reg *registry.Registry) *Runner {
	return &Runner{store: store, reg: reg, maxDepth: DefaultMaxDepth}
}

// SetMaxDepth overrides the call-stack depth limit. Non-positive values
// keep the current limit.
func (r *Runner) SetMaxDepth(depth int) {
	if depth > 0 {
		r.maxDepth = depth
	}
}

// LoadProtocol hydrates a protocol entity by id. Returns nil when the id
// does not name a protocol entity.
func (r *Runner) LoadProtocol(ctx context.Context, id string) (*types.Protocol, error) {
	entity, err := r.store.LoadEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil || entity.Type != types.TypeProtocol {
		return nil, nil
	}
	protocol, err := types.ParseProtocol(entity)
	if err != nil {
		return nil, types.NewError(types.ErrMapping, "%v", err)
	}
	return protocol, nil
}

// Execute resolves and runs a protocol by id. Inputs are augmented with
// the reserved db_path and persona_id keys before the run starts.
func (r *Runner) Execute(ctx context.Context, protocolID string, inputs map[string]any, opts Options) (map[string]any, error) {
	protocol, err := r.LoadProtocol(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	if protocol == nil {
		return nil, types.NewError(types.ErrProtocolNotFound, "protocol not found: %s", protocolID)
	}

	full := map[string]any{"db_path": r.store.Path()}
	for k, v := range inputs {
		full[k] = v
	}
	if opts.PersonaID != "" {
		full["persona_id"] = opts.PersonaID
	}

	return r.Run(ctx, protocol, full, opts)
}

// Run executes a hydrated protocol to completion, persisting every state
// transition. Sub-protocol CALL nodes suspend the caller and push the
// child; the child's extracted output resumes the caller. A stressed state
// anywhere in the stack aborts the run with that state's error.
func (r *Runner) Run(ctx context.Context, protocol *types.Protocol, inputs map[string]any, opts Options) (map[string]any, error) {
	ec := &storage.ExecutionContext{
		DBPath:    r.store.Path(),
		Store:     r.store,
		PersonaID: opts.PersonaID,
		StateID:   opts.StateID,
		Ctx:       ctx,
		Sink:      opts.Sink,
	}

	loader := func(ctx context.Context, ref string) (*types.Protocol, error) {
		return r.LoadProtocol(ctx, ref)
	}

	// Handlers reach sub-protocols through the registry hook rather than
	// importing this package.
	r.reg.SetProtocolInvoker(func(ctx context.Context, ec *storage.ExecutionContext, protocolID string, pinputs map[string]any) (map[string]any, error) {
		return r.Execute(ctx, protocolID, pinputs, Options{PersonaID: opts.PersonaID, Sink: opts.Sink})
	})

	machine := vm.New(r.reg, loader, ec)

	state := machine.Spawn(protocol, inputs)
	if opts.StateID != "" {
		state.ID = opts.StateID
	}
	if err := r.recordSpawn(ctx, state, opts.PersonaID); err != nil {
		return nil, err
	}

	type frame struct {
		protocol *types.Protocol
		state    *types.State
	}
	stack := []frame{{protocol, state}}

	for len(stack) > 0 {
		cur := &stack[len(stack)-1]

		switch cur.state.Status {
		case types.StatusFulfilled:
			if err := r.store.SaveState(ctx, cur.state); err != nil {
				return nil, err
			}
			result := machine.ExtractOutput(cur.protocol, cur.state)
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				parent := &stack[len(stack)-1]
				parent.state, _ = machine.Step(ctx, parent.protocol, parent.state, result)
			}
			continue

		case types.StatusStressed:
			if err := r.store.SaveState(ctx, cur.state); err != nil {
				return nil, err
			}
			stateErr := cur.state.Data.Error
			if stateErr == nil {
				return nil, types.NewError(types.ErrRuntime, "protocol %s stressed without error detail", cur.protocol.ID)
			}
			return nil, &types.Error{Kind: stateErr.Kind, Message: stateErr.Message, Details: stateErr.Details}
		}

		updated, child := machine.Step(ctx, cur.protocol, cur.state, nil)
		cur.state = updated
		if err := r.store.SaveState(ctx, cur.state); err != nil {
			return nil, err
		}

		if child == nil {
			continue
		}

		if len(stack) >= r.maxDepth {
			stressFrame(cur.state, types.ErrProtocol,
				"protocol call depth exceeded %d at %s", r.maxDepth, child.Data.ProtocolID)
			continue
		}

		childProtocol, err := r.LoadProtocol(ctx, child.Data.ProtocolID)
		if err != nil {
			return nil, err
		}
		if childProtocol == nil {
			stressFrame(cur.state, types.ErrProtocolNotFound,
				"protocol not found: %s", child.Data.ProtocolID)
			continue
		}

		child.Status = types.StatusRunning
		if err := r.recordSpawn(ctx, child, opts.PersonaID); err != nil {
			return nil, err
		}
		stack = append(stack, frame{childProtocol, child})
	}

	return machine.ExtractOutput(protocol, state), nil
}

func (r *Runner) recordSpawn(ctx context.Context, state *types.State, personaID string) error {
	if err := r.store.SaveState(ctx, state); err != nil {
		return err
	}
	return r.store.AppendEvent(ctx, &types.EventRecord{
		ID:        "event-" + uuid.NewString(),
		Type:      types.EventProtocolSpawn,
		Op:        types.OpSuccess,
		PersonaID: personaID,
		Payload: map[string]any{
			"state_id":        state.ID,
			"protocol_id":     state.Data.ProtocolID,
			"parent_state_id": state.Data.ParentStateID,
		},
	})
}

func stressFrame(state *types.State, kind, format string, args ...any) {
	err := types.NewError(kind, format, args...)
	state.Status = types.StatusStressed
	state.Data.Error = &types.StateError{Kind: err.Kind, Message: err.Message, Details: map[string]any{}}
}
