package types

import "fmt"

// Error kinds of the dispatch surface. Every failure crossing the engine
// boundary carries exactly one of these.
const (
	ErrIntentNotFound      = "intent_not_found"
	ErrDatabaseNotFound    = "database_not_found"
	ErrProtocolNotFound    = "protocol_not_found"
	ErrPrimitiveNotFound   = "primitive_not_found"
	ErrPrimitiveNotLoaded  = "primitive_not_loaded"
	ErrPrimitiveExecution  = "primitive_execution_error"
	ErrMapping             = "mapping_error"
	ErrRuntime             = "runtime_error"
	ErrProtocol            = "protocol_error"
	ErrConfig              = "config_error"
	ErrStorage             = "storage_error"
	ErrConstraintViolation = "constraint_violation"
	ErrNoInvoker           = "no_invoker"
)

// Error is a structured CVM error. Callers never see raw backend failures;
// the Kind is one of the taxonomy constants above.
type Error struct {
	Kind    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a structured error.
func NewError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the structured kind from err, or returns fallback.
func KindOf(err error, fallback string) string {
	if cvmErr, ok := err.(*Error); ok {
		return cvmErr.Kind
	}
	return fallback
}
