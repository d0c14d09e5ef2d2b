package workflow

import (
	"errors"
	"testing"
)

func TestErrorKindTags(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &ValidationError{Kind: TypeCompatibility, Message: "m"}, "ValidationError.TypeCompatibility"},
		{"dispatch", &DispatchError{ExecutorID: "e"}, "DispatchError"},
		{"handler", &HandlerError{ExecutorID: "e", Cause: errors.New("x")}, "HandlerError"},
		{"convergence", &ConvergenceError{Iterations: 100}, "ConvergenceError"},
		{"protocol", &ProtocolError{Message: "m"}, "ProtocolError"},
		{"serialization", &SerializationError{Message: "m"}, "SerializationError"},
		{"plain", errors.New("x"), "Error"},
		{"wrapped handler", &ProtocolError{Message: "outer", Cause: &ConvergenceError{Iterations: 1}}, "ConvergenceError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKind(tt.err); got != tt.want {
				t.Errorf("errorKind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorDetailsCarriesHandlerContext(t *testing.T) {
	err := &HandlerError{ExecutorID: "worker", Cause: errors.New("boom"), Stack: "stack"}
	d := errorDetails(err)
	if d.Kind != "HandlerError" || d.ExecutorID != "worker" || d.StackTrace != "stack" {
		t.Errorf("details = %+v", d)
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("root")
	if !errors.Is(&HandlerError{Cause: cause}, cause) {
		t.Error("HandlerError should unwrap its cause")
	}
	if !errors.Is(&ProtocolError{Cause: ErrAlreadyRunning}, ErrAlreadyRunning) {
		t.Error("ProtocolError should unwrap its cause")
	}
	if !errors.Is(&SerializationError{Cause: cause}, cause) {
		t.Error("SerializationError should unwrap its cause")
	}
}

func TestJoinValidationErrorsMatchesEachKind(t *testing.T) {
	err := joinValidationErrors([]error{
		validationErrorf(EdgeDuplication, "dup"),
		validationErrorf(GraphConnectivity, "island"),
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("joined error should match ValidationError")
	}
	if hasValidationKind(err, EdgeDuplication) != true || hasValidationKind(err, GraphConnectivity) != true {
		t.Error("both kinds should be present in the joined error")
	}
}

func TestRunStateTerminal(t *testing.T) {
	terminal := []RunState{StateCompleted, StateFailed, StateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []RunState{StateStarted, StateInProgress, StateWaitingForInput} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
