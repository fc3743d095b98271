package types

// StateStatus is the lifecycle of one protocol run.
type StateStatus string

const (
	StatusPending   StateStatus = "pending"
	StatusRunning   StateStatus = "running"
	StatusFulfilled StateStatus = "fulfilled"
	StatusStressed  StateStatus = "stressed"
	StatusSuspended StateStatus = "suspended"
	StatusCancelled StateStatus = "cancelled"
)

// StateError is the structured error carried by a stressed state.
type StateError struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StateData is the serialized body of a state snapshot. Memory maps each
// executed node id to that node's result, plus the reserved "inputs" key
// holding the call's inputs. Cursor is the current node id, empty once the
// run is terminal; ExitNode records the RETURN node that ended the run.
type StateData struct {
	ProtocolID      string         `json:"protocol_id"`
	ProtocolVersion int            `json:"protocol_version"`
	ParentStateID   string         `json:"parent_state_id,omitempty"`
	Cursor          string         `json:"cursor,omitempty"`
	ExitNode        string         `json:"exit_node,omitempty"`
	Memory          map[string]any `json:"memory"`
	Error           *StateError    `json:"error,omitempty"`
}

// State is one in-flight (or finished) protocol run.
type State struct {
	ID     string      `json:"id"`
	Status StateStatus `json:"status"`
	Data   StateData   `json:"data"`
}

// Terminal reports whether the state can make no further progress.
func (s *State) Terminal() bool {
	switch s.Status {
	case StatusFulfilled, StatusStressed, StatusCancelled:
		return true
	}
	return false
}
