package task

import (
	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/id"
)

// FailureInfo describes a classified execution failure.
type FailureInfo struct {
	// Kind is the error-record classification: KindTaskExecution when
	// user code raised, KindRegistrationImport when the code object
	// failed to materialize before user code ran.
	Kind errlog.Kind `json:"kind"`

	// Message carries the original failure text verbatim.
	Message string `json:"message"`

	// Stack is the captured stack trace, if any.
	Stack string `json:"stack,omitempty"`
}

// Outcome is the tagged union returned from the execution boundary:
// either Values is set (success) or Failure is set, never both. The
// propagator pattern-matches on the tag instead of relying on panic
// unwinding across the worker boundary.
type Outcome struct {
	Values  [][]byte     `json:"values,omitempty"`
	Failure *FailureInfo `json:"failure,omitempty"`
}

// Success builds a successful outcome carrying the declared return values.
func Success(values ...[]byte) *Outcome {
	return &Outcome{Values: values}
}

// Failed builds a failed outcome with the given classification and message.
func Failed(kind errlog.Kind, message string) *Outcome {
	return &Outcome{Failure: &FailureInfo{Kind: kind, Message: message}}
}

// Ok reports whether the outcome is a success.
func (o *Outcome) Ok() bool { return o.Failure == nil }

// ExecutionError is the error delivered to callers blocked on a failed
// result. Its message embeds the original failure text verbatim.
type ExecutionError struct {
	Kind    errlog.Kind
	CallID  id.CallID
	Message string
}

// Error implements the error interface.
func (e *ExecutionError) Error() string { return e.Message }
