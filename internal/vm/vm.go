// Package vm executes protocol graphs one node at a time.
package vm

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/liminalcommons/chora-cvm/internal/registry"
	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// Loader resolves a protocol ref to a hydrated protocol, or nil when the
// ref does not name one.
type Loader func(ctx context.Context, ref string) (*types.Protocol, error)

// VM steps protocol states. It owns no stack: the runner drives Step and
// pushes any child state the VM hands back. Deterministic by construction,
// every effect flows through the registry's handlers.
type VM struct {
	registry *registry.Registry
	loader   Loader
	ec       *storage.ExecutionContext
}

func New(reg *registry.Registry, loader Loader, ec *storage.ExecutionContext) *VM {
	return &VM{registry: reg, loader: loader, ec: ec}
}

// Spawn creates the initial state for a protocol run. The cursor sits on
// the graph's start node and memory holds only the reserved "inputs" key.
func (vm *VM) Spawn(protocol *types.Protocol, inputs map[string]any) *types.State {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &types.State{
		ID:     "state-" + uuid.NewString(),
		Status: types.StatusRunning,
		Data: types.StateData{
			ProtocolID:      protocol.ID,
			ProtocolVersion: protocol.Version,
			Cursor:          protocol.Data.Graph.Start,
			Memory:          map[string]any{"inputs": inputs},
		},
	}
}

// Step executes the node under the cursor and advances the state.
//
// The second return value is non-nil only when the node called a
// sub-protocol: the caller must run the child to completion and feed its
// output back as childResult on the next Step of this (now suspended)
// state. Terminal states pass through unchanged.
func (vm *VM) Step(ctx context.Context, protocol *types.Protocol, state *types.State, childResult map[string]any) (*types.State, *types.State) {
	if state.Status == types.StatusSuspended {
		if childResult != nil && state.Data.Cursor != "" {
			state.Data.Memory[state.Data.Cursor] = childResult
			return vm.advanceCursor(protocol.Data.Graph, state, state.Data.Cursor), nil
		}
		return state, nil
	}

	if state.Status != types.StatusPending && state.Status != types.StatusRunning {
		return state, nil
	}

	graph := protocol.Data.Graph
	cursor := state.Data.Cursor
	node, ok := graph.Nodes[cursor]
	if cursor == "" || !ok {
		state.Status = types.StatusFulfilled
		state.Data.Cursor = ""
		return state, nil
	}

	switch node.Kind {
	case types.NodeCall:
		return vm.stepCall(ctx, graph, state, cursor, node)

	case types.NodeReturn:
		state.Status = types.StatusFulfilled
		state.Data.ExitNode = cursor
		state.Data.Cursor = ""
		return state, nil
	}

	return stressState(state, types.ErrConfig, "node %s has unknown kind %q", cursor, node.Kind), nil
}

func (vm *VM) stepCall(ctx context.Context, graph *types.ProtocolGraph, state *types.State, cursor string, node *types.ProtocolNode) (*types.State, *types.State) {
	if node.Ref == "" {
		return stressState(state, types.ErrConfig, "node %s is missing a ref", cursor), nil
	}

	// Protocol refs dispatch as sub-protocols before any primitive lookup.
	if strings.HasPrefix(node.Ref, types.ProtocolPrefix) {
		if vm.loader == nil {
			return stressState(state, types.ErrConfig, "no protocol loader configured"), nil
		}
		child, err := vm.loader(ctx, node.Ref)
		if err != nil {
			return stressState(state, types.KindOf(err, types.ErrStorage), "failed to load %s: %v", node.Ref, err), nil
		}
		if child == nil {
			return stressState(state, types.ErrProtocolNotFound, "protocol %s not found", node.Ref), nil
		}

		childState := vm.Spawn(child, mapInputs(node.Inputs, state.Data.Memory))
		childState.Data.ParentStateID = state.ID
		state.Status = types.StatusSuspended
		return state, childState
	}

	args := mapInputs(node.Inputs, state.Data.Memory)
	result, err := vm.registry.Call(vm.ec, node.Ref, args)
	if err != nil {
		// Inside a graph, a failing handler is a runtime fault of the run;
		// primitive_execution_error belongs to the engine's direct-primitive
		// path only. Structured kinds other than that pass through.
		kind := types.KindOf(err, types.ErrRuntime)
		if kind == types.ErrPrimitiveExecution {
			kind = types.ErrRuntime
		}
		message := err.Error()
		if cvmErr, ok := err.(*types.Error); ok {
			message = cvmErr.Message
		}
		return stressState(state, kind, "%s", message), nil
	}

	state.Data.Memory[cursor] = result
	return vm.advanceCursor(graph, state, cursor), nil
}

// ExtractOutput maps a fulfilled state's memory through the outputs of the
// RETURN node the run exited on. States from before exit nodes were
// recorded fall back to the first RETURN node found.
func (vm *VM) ExtractOutput(protocol *types.Protocol, state *types.State) map[string]any {
	graph := protocol.Data.Graph

	if exit := state.Data.ExitNode; exit != "" {
		if node, ok := graph.Nodes[exit]; ok && node.Kind == types.NodeReturn {
			return mapInputs(node.Outputs, state.Data.Memory)
		}
	}

	for _, node := range graph.Nodes {
		if node.Kind == types.NodeReturn {
			return mapInputs(node.Outputs, state.Data.Memory)
		}
	}
	return map[string]any{}
}

// advanceCursor picks the next node. A matching conditional edge wins,
// then the default edge, then a plain unconditional edge; with no
// candidate the run fulfills.
func (vm *VM) advanceCursor(graph *types.ProtocolGraph, state *types.State, current string) *types.State {
	var defaultEdge, plainEdge *types.ProtocolEdge
	for _, edge := range graph.Edges {
		if edge.From != current {
			continue
		}
		switch {
		case edge.Condition != nil:
			if evaluateCondition(edge.Condition, state.Data.Memory) {
				state.Data.Cursor = edge.To
				state.Status = types.StatusRunning
				return state
			}
		case edge.Default:
			if defaultEdge == nil {
				defaultEdge = edge
			}
		default:
			if plainEdge == nil {
				plainEdge = edge
			}
		}
	}

	if defaultEdge != nil {
		state.Data.Cursor = defaultEdge.To
		state.Status = types.StatusRunning
		return state
	}
	if plainEdge != nil {
		state.Data.Cursor = plainEdge.To
		state.Status = types.StatusRunning
		return state
	}

	state.Status = types.StatusFulfilled
	state.Data.Cursor = ""
	return state
}

func stressState(state *types.State, kind, format string, args ...any) *types.State {
	err := types.NewError(kind, format, args...)
	state.Status = types.StatusStressed
	state.Data.Error = &types.StateError{Kind: err.Kind, Message: err.Message, Details: map[string]any{}}
	return state
}
