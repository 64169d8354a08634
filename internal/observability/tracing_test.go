package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracerWithoutEndpointIsNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test"})
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}()

	ctx, span := tracer.Start(context.Background(), "op")
	if ctx == nil || span == nil {
		t.Fatal("expected usable context and span from no-op tracer")
	}
	span.End()
}

func TestSpanHelpersDoNotPanic(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	_, span := tracer.TraceMessageProcessing(context.Background(), "slack", "inbound", "s1")
	tracer.RecordError(span, errors.New("boom"))
	tracer.RecordError(span, nil)
	span.End()

	_, span = tracer.TraceLLMRequest(context.Background(), "anthropic", "claude")
	span.End()

	_, span = tracer.TraceToolExecution(context.Background(), "read_file")
	span.End()
}

func TestSpanContextPropagates(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test"})
	defer shutdown(context.Background())

	ctx, parent := tracer.Start(context.Background(), "parent")
	childCtx, child := tracer.Start(ctx, "child")
	if childCtx == nil {
		t.Fatal("child context missing")
	}
	child.End()
	parent.End()
}
