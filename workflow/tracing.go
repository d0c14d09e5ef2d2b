package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEnvVar gates OpenTelemetry diagnostics. Tracing is off unless the
// variable is set to a truthy value ("1", "true", "yes"), keeping the
// default path free of span overhead.
const OTelEnvVar = "WORKFLOW_ENABLE_OTEL_DIAGNOSTICS"

var otelEnabled = sync.OnceValue(func() bool {
	switch strings.ToLower(os.Getenv(OTelEnvVar)) {
	case "1", "true", "yes":
		return true
	}
	return false
})

// tracer wraps an OpenTelemetry tracer behind nil-safe helpers. A nil
// *tracer is the disabled state: every method is a no-op, so call sites
// never branch on the gate.
//
// Span names follow the runtime's vocabulary:
//
//	workflow.run       one per Run/Resume, parent of everything below
//	workflow.superstep one per scheduler iteration
//	executor.process   one per executor invocation
//	message.publish    instant span per published message
type tracer struct {
	tr trace.Tracer
}

// newTracer returns an active tracer when diagnostics are enabled, nil
// otherwise. The environment variable is read once per process.
func newTracer() *tracer {
	if !otelEnabled() {
		return nil
	}
	return &tracer{tr: otel.Tracer("github.com/microsoft/agent-framework-go/workflow")}
}

// runStarted opens the run span. The returned func closes it, recording err
// as the span status.
func (t *tracer) runStarted(ctx context.Context, runID, workflowID string) (context.Context, func(error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tr.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.run_id", runID),
		attribute.String("workflow.id", workflowID),
	))
	return ctx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}

// superstepStarted opens one scheduler-iteration span.
func (t *tracer) superstepStarted(ctx context.Context, runID string, iteration int) (context.Context, func()) {
	if t == nil {
		return ctx, func() {}
	}
	ctx, span := t.tr.Start(ctx, "workflow.superstep", trace.WithAttributes(
		attribute.String("workflow.run_id", runID),
		attribute.Int("workflow.superstep", iteration),
	))
	return ctx, func() { span.End() }
}

// executorStarted opens one executor-invocation span.
func (t *tracer) executorStarted(ctx context.Context, executorID string) (context.Context, func(error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tr.Start(ctx, "executor.process", trace.WithAttributes(
		attribute.String("workflow.executor_id", executorID),
	))
	return ctx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}

// messagePublished records an instant span for one published message.
func (t *tracer) messagePublished(sourceID string, payload any) {
	if t == nil {
		return
	}
	_, span := t.tr.Start(context.Background(), "message.publish", trace.WithAttributes(
		attribute.String("workflow.source_id", sourceID),
		attribute.String("workflow.payload_type", fmt.Sprintf("%T", payload)),
	))
	span.End()
}
