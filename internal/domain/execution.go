package domain

import "context"

// ErrorKind is a stable execution failure classification.
type ErrorKind string

const (
	ErrUpstreamUnavailable  ErrorKind = "UPSTREAM_UNAVAILABLE"
	ErrTimeout              ErrorKind = "TIMEOUT"
	ErrOperationNotDeclared ErrorKind = "OPERATION_NOT_DECLARED"
	ErrParameterInvalid     ErrorKind = "PARAMETER_INVALID"
)

// ExecError is a structured execution failure surfaced to the caller.
type ExecError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ExecError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// ExecutionResult describes what an operation changed or returned, in a
// form the response synthesizer can render for the user.
type ExecutionResult struct {
	Capability string
	Operation  string
	Summary    string
	Data       map[string]any
}

// OperationHandler implements one whitelisted downstream operation.
type OperationHandler interface {
	Name() string
	Execute(ctx context.Context, userID string, params map[string]string) (*ExecutionResult, error)
}
