package types

import (
	"fmt"
	"strings"
)

// ProtocolPrefix marks protocol entity ids. A CALL ref carrying this prefix
// is dispatched as a sub-protocol before any primitive lookup is attempted.
const ProtocolPrefix = "protocol-"

// PrimitivePrefix marks primitive entity ids.
const PrimitivePrefix = "primitive-"

// ConditionOp is the operator of an edge condition.
type ConditionOp string

const (
	CondEq       ConditionOp = "eq"
	CondNeq      ConditionOp = "neq"
	CondGt       ConditionOp = "gt"
	CondLt       ConditionOp = "lt"
	CondContains ConditionOp = "contains"
	CondEmpty    ConditionOp = "empty"
)

// EdgeCondition gates a protocol edge on a memory lookup.
type EdgeCondition struct {
	Op    ConditionOp `json:"op"`
	Path  string      `json:"path"`
	Value any         `json:"value,omitempty"`
}

// NodeKind distinguishes the two protocol node kinds.
type NodeKind string

const (
	NodeCall   NodeKind = "call"
	NodeReturn NodeKind = "return"
)

// ProtocolNode is one node of a protocol graph. CALL nodes name a primitive
// or sub-protocol in Ref and map parameter names to expressions in Inputs.
// RETURN nodes assemble the run's result from Outputs.
type ProtocolNode struct {
	Kind    NodeKind       `json:"kind"`
	Ref     string         `json:"ref,omitempty"`
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

// ProtocolEdge connects two nodes. Precedence at step time: a matching
// conditional edge, then the default edge, then an unconditional edge.
type ProtocolEdge struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Condition *EdgeCondition `json:"condition,omitempty"`
	Default   bool           `json:"default,omitempty"`
}

// ProtocolGraph is the directed graph a protocol executes.
type ProtocolGraph struct {
	Start string                   `json:"start"`
	Nodes map[string]*ProtocolNode `json:"nodes"`
	Edges []*ProtocolEdge          `json:"edges"`
}

// Interface declares the inputs and outputs of a capability.
type Interface struct {
	Description string         `json:"description,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
}

// ProtocolData is the JSON payload of a protocol entity.
type ProtocolData struct {
	Interface   Interface      `json:"interface"`
	Graph       *ProtocolGraph `json:"graph"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Group       string         `json:"group,omitempty"`
	Internal    bool           `json:"internal,omitempty"`
}

// Protocol is a hydrated protocol entity.
type Protocol struct {
	ID      string
	Version int
	Data    ProtocolData
}

// PrimitiveData is the JSON payload of a primitive entity. HandlerRef is a
// key into the builtin symbol table; an unresolvable ref leaves the record
// registered with a nil handler so it stays enumerable.
type PrimitiveData struct {
	HandlerRef  string    `json:"handler_ref"`
	Description string    `json:"description,omitempty"`
	Interface   Interface `json:"interface"`
}

// Primitive is a hydrated primitive entity.
type Primitive struct {
	ID      string
	Version int
	Data    PrimitiveData
}

// ParseProtocol hydrates a Protocol from a raw entity.
func ParseProtocol(e *Entity) (*Protocol, error) {
	if e.Type != TypeProtocol {
		return nil, fmt.Errorf("entity %s is %q, not a protocol", e.ID, e.Type)
	}
	var data ProtocolData
	if err := e.DecodeData(&data); err != nil {
		return nil, fmt.Errorf("failed to decode protocol %s: %w", e.ID, err)
	}
	if data.Graph == nil || data.Graph.Start == "" {
		return nil, fmt.Errorf("protocol %s has no graph", e.ID)
	}
	return &Protocol{ID: e.ID, Version: 1, Data: data}, nil
}

// ParsePrimitive hydrates a Primitive from a raw entity.
func ParsePrimitive(e *Entity) (*Primitive, error) {
	if e.Type != TypePrimitive {
		return nil, fmt.Errorf("entity %s is %q, not a primitive", e.ID, e.Type)
	}
	var data PrimitiveData
	if err := e.DecodeData(&data); err != nil {
		return nil, fmt.Errorf("failed to decode primitive %s: %w", e.ID, err)
	}
	return &Primitive{ID: e.ID, Version: 1, Data: data}, nil
}

// ShortName strips the protocol-/primitive- prefix from a capability id.
// Returns the id unchanged when no prefix is present.
func ShortName(id string) string {
	if strings.HasPrefix(id, ProtocolPrefix) {
		return id[len(ProtocolPrefix):]
	}
	if strings.HasPrefix(id, PrimitivePrefix) {
		return id[len(PrimitivePrefix):]
	}
	return id
}
