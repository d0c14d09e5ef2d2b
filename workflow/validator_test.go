package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func hasValidationKind(err error, kind ValidationKind) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	// errors.As stops at the first match; scan the joined message for the
	// kind tag to cover multi-error results.
	return strings.Contains(err.Error(), string(kind))
}

func TestBuildRejectsMissingStart(t *testing.T) {
	_, err := NewBuilder().AddEdge(sink("a"), sink("b"), nil).Build()
	if !hasValidationKind(err, GraphConnectivity) {
		t.Errorf("err = %v, want GraphConnectivity", err)
	}
}

func TestBuildRejectsDuplicateEdges(t *testing.T) {
	a, b := sink("a"), sink("b")
	_, err := NewBuilder().
		SetStartExecutor(a).
		AddEdge(a, b, nil).
		AddEdge(a, b, nil).
		Build()
	if !hasValidationKind(err, EdgeDuplication) {
		t.Errorf("err = %v, want EdgeDuplication", err)
	}
}

func TestBuildRejectsUnreachableExecutor(t *testing.T) {
	a, b, island1, island2 := sink("a"), sink("b"), sink("i1"), sink("i2")
	_, err := NewBuilder().
		SetStartExecutor(a).
		AddEdge(a, b, nil).
		AddEdge(island1, island2, nil).
		Build()
	if !hasValidationKind(err, GraphConnectivity) {
		t.Errorf("err = %v, want GraphConnectivity", err)
	}
}

func TestBuildRejectsHandlerWithoutOutputEnvelope(t *testing.T) {
	bad := NewExecutor("bad")
	bad.RegisterHandler(AnyType(), OutputSpec{}, func(context.Context, any, *ExecutionContext) error {
		return nil
	})
	_, err := NewBuilder().SetStartExecutor(bad).Build()
	if !hasValidationKind(err, HandlerOutputAnnotation) {
		t.Errorf("err = %v, want HandlerOutputAnnotation", err)
	}
}

func TestBuildRejectsExecutorWithoutHandlers(t *testing.T) {
	_, err := NewBuilder().SetStartExecutor(NewExecutor("empty")).Build()
	if !hasValidationKind(err, HandlerOutputAnnotation) {
		t.Errorf("err = %v, want HandlerOutputAnnotation", err)
	}
}

func TestBuildRejectsIncompatibleEdgeTypes(t *testing.T) {
	producer := NewExecutor("producer")
	OnMessage(producer, OutputTypes(TypeOf[string]()), func(_ context.Context, _ string, _ *ExecutionContext) error {
		return nil
	})
	_, err := NewBuilder().
		SetStartExecutor(producer).
		AddEdge(producer, intSink("consumer"), nil).
		Build()
	if !hasValidationKind(err, TypeCompatibility) {
		t.Errorf("err = %v, want TypeCompatibility", err)
	}
}

func TestBuildAcceptsFanInWithListTarget(t *testing.T) {
	newProducer := func(id string) *Executor {
		ex := NewExecutor(id)
		OnMessage(ex, OutputTypes(TypeOf[string]()), func(_ context.Context, _ string, _ *ExecutionContext) error {
			return nil
		})
		return ex
	}
	start, p1, p2 := sink("start"), newProducer("p1"), newProducer("p2")
	agg := NewExecutor("agg")
	agg.RegisterHandler(ListOf(TypeOf[string]()), NoOutput(), func(context.Context, any, *ExecutionContext) error {
		return nil
	})

	_, err := NewBuilder().
		SetStartExecutor(start).
		AddFanOut(start, []ExecutorNode{p1, p2}, nil).
		AddFanIn([]ExecutorNode{p1, p2}, agg).
		Build()
	if err != nil {
		t.Errorf("fan-in into a list handler should validate, got %v", err)
	}
}

func TestBuildRejectsDuplicateInterceptorClaims(t *testing.T) {
	intercept := func(context.Context, RequestInfoMessage) (any, error) { return nil, nil }
	_, err := NewBuilder().
		SetStartExecutor(sink("a")).
		AddRequestInterceptor("approval", "", intercept).
		AddRequestInterceptor("approval", "", intercept).
		Build()
	if !hasValidationKind(err, InterceptorConflict) {
		t.Errorf("err = %v, want InterceptorConflict", err)
	}
}

func TestBuildCollectsAllFailuresAtOnce(t *testing.T) {
	producer := NewExecutor("producer")
	OnMessage(producer, OutputTypes(TypeOf[string]()), func(_ context.Context, _ string, _ *ExecutionContext) error {
		return nil
	})
	a := sink("a")
	_, err := NewBuilder().
		SetStartExecutor(producer).
		AddEdge(producer, intSink("consumer"), nil).
		AddEdge(a, a, nil). // unreachable island
		Build()
	if err == nil {
		t.Fatal("expected joined validation failures")
	}
	if !hasValidationKind(err, TypeCompatibility) || !hasValidationKind(err, GraphConnectivity) {
		t.Errorf("joined error should carry both kinds, got %v", err)
	}
}

func TestBuildWarnsOnDeadEdge(t *testing.T) {
	quiet := NewExecutor("quiet")
	OnMessage(quiet, NoOutput(), func(_ context.Context, _ string, _ *ExecutionContext) error { return nil })

	w, err := NewBuilder().
		SetStartExecutor(quiet).
		AddEdge(quiet, sink("b"), nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !hasWarning(w.buildWarnings, "warning", "is dead") {
		t.Errorf("warnings = %+v, want a dead-edge warning", w.buildWarnings)
	}
}

func hasWarning(warnings []ValidationWarning, severity, fragment string) bool {
	for _, warn := range warnings {
		if warn.Severity == severity && strings.Contains(warn.Message, fragment) {
			return true
		}
	}
	return false
}

func TestBuildWarnsOnSelfLoop(t *testing.T) {
	a := sink("a")
	w, err := NewBuilder().SetStartExecutor(a).AddEdge(a, a, nil).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !hasWarning(w.buildWarnings, "warning", "self-loop") {
		t.Errorf("warnings = %+v, want a self-loop warning", w.buildWarnings)
	}
}

func TestBuildWarnsOnCycle(t *testing.T) {
	a, b := sink("a"), sink("b")
	w, err := NewBuilder().
		SetStartExecutor(a).
		AddEdge(a, b, nil).
		AddEdge(b, a, nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !hasWarning(w.buildWarnings, "warning", "cycle") {
		t.Errorf("warnings = %+v, want a cycle warning", w.buildWarnings)
	}
}

func TestBuildWarnsOnAmbiguousHandlers(t *testing.T) {
	twice := NewExecutor("twice")
	OnMessage(twice, NoOutput(), func(context.Context, string, *ExecutionContext) error { return nil })
	OnMessage(twice, NoOutput(), func(context.Context, string, *ExecutionContext) error { return nil })

	w, err := NewBuilder().SetStartExecutor(twice).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !hasWarning(w.buildWarnings, "warning", "first registered wins") {
		t.Errorf("warnings = %+v, want an ambiguous-handler warning", w.buildWarnings)
	}
}

func TestBuildNotesDeadEndExecutors(t *testing.T) {
	w, err := NewBuilder().AddChain(sink("a"), sink("b")).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !hasWarning(w.buildWarnings, "info", `"b" has no outgoing edges`) {
		t.Errorf("warnings = %+v, want a dead-end note for b", w.buildWarnings)
	}
	if hasWarning(w.buildWarnings, "info", `"a" has no outgoing edges`) {
		t.Errorf("warnings = %+v, a has outgoing edges", w.buildWarnings)
	}
}
