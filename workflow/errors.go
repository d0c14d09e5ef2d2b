package workflow

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning indicates a second concurrent Run on a workflow instance.
var ErrAlreadyRunning = errors.New("workflow is already running")

// ErrNotSuspended indicates a Resume on a workflow that is not waiting for
// input and has no restored checkpoint state.
var ErrNotSuspended = errors.New("workflow is not suspended")

// ValidationKind names the distinct build-time validation failures.
type ValidationKind string

const (
	EdgeDuplication         ValidationKind = "EdgeDuplication"
	TypeCompatibility       ValidationKind = "TypeCompatibility"
	GraphConnectivity       ValidationKind = "GraphConnectivity"
	HandlerOutputAnnotation ValidationKind = "HandlerOutputAnnotation"
	InterceptorConflict     ValidationKind = "InterceptorConflict"
)

// ValidationError is raised synchronously from Build; no run starts when the
// assembled graph fails validation.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func validationErrorf(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// DispatchError indicates that no handler on the target executor accepted a
// delivered message. It surfaces as a WorkflowWarning event; the offending
// message is dropped, never silently rerouted.
type DispatchError struct {
	ExecutorID string
	Payload    any
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("executor %q has no handler for payload of type %T", e.ExecutorID, e.Payload)
}

// HandlerError wraps an error raised (or a panic recovered) inside a handler.
// It becomes an ExecutorFailed event followed by WorkflowFailed.
type HandlerError struct {
	ExecutorID string
	Cause      error
	Stack      string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("executor %q handler failed: %v", e.ExecutorID, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

// ConvergenceError indicates the superstep loop exceeded max_iterations
// without quiescing.
type ConvergenceError struct {
	Iterations int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("workflow did not converge after %d supersteps", e.Iterations)
}

// ProtocolError indicates misuse of the run lifecycle API: resuming with an
// unknown request id, or starting a second concurrent run. Protocol errors
// surface to the caller, never via the event stream.
type ProtocolError struct {
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return "protocol error: " + e.Message + ": " + e.Cause.Error()
	}
	return "protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// SerializationError indicates a checkpoint save or load failure. Like
// protocol errors, it surfaces to the caller of the checkpoint API.
type SerializationError struct {
	Message string
	Cause   error
}

func (e *SerializationError) Error() string {
	if e.Cause != nil {
		return "serialization error: " + e.Message + ": " + e.Cause.Error()
	}
	return "serialization error: " + e.Message
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// errorKind maps an error to the kind tag exposed on failure events.
func errorKind(err error) string {
	var (
		ve *ValidationError
		de *DispatchError
		he *HandlerError
		ce *ConvergenceError
		pe *ProtocolError
		se *SerializationError
	)
	switch {
	case errors.As(err, &ve):
		return "ValidationError." + string(ve.Kind)
	case errors.As(err, &de):
		return "DispatchError"
	case errors.As(err, &he):
		return "HandlerError"
	case errors.As(err, &ce):
		return "ConvergenceError"
	case errors.As(err, &pe):
		return "ProtocolError"
	case errors.As(err, &se):
		return "SerializationError"
	default:
		return "Error"
	}
}

// errorDetails builds the structured details attached to failure events.
func errorDetails(err error) *ErrorDetails {
	d := &ErrorDetails{
		Kind:    errorKind(err),
		Message: err.Error(),
	}
	var he *HandlerError
	if errors.As(err, &he) {
		d.ExecutorID = he.ExecutorID
		d.StackTrace = he.Stack
	}
	return d
}

// joinValidationErrors collapses a list of validation failures into a single
// error; errors.As still matches each individual kind.
func joinValidationErrors(errs []error) error {
	return errors.Join(errs...)
}
