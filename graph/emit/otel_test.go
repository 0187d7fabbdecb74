package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func TestOTelEmitter_Emit(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{
		ThreadID: "t-1",
		Wave:     3,
		NodeID:   "frontend",
		Msg:      MsgNodeEnd,
		Meta: map[string]interface{}{
			"duration_ms": int64(42),
			"fields":      []string{"frontend_files", "messages"},
			"continued":   true,
			"elapsed":     1500 * time.Millisecond,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != MsgNodeEnd {
		t.Errorf("span name = %q, want %q", span.Name, MsgNodeEnd)
	}

	attrs := attributeMap(span.Attributes)
	checks := map[string]interface{}{
		"wavegraph.thread_id":   "t-1",
		"wavegraph.wave":        int64(3),
		"wavegraph.node_id":     "frontend",
		"wavegraph.duration_ms": int64(42),
		"wavegraph.continued":   true,
		"wavegraph.elapsed":     int64(1500),
	}
	for key, want := range checks {
		if got := attrs[key]; got != want {
			t.Errorf("%s = %v (%T), want %v", key, got, got, want)
		}
	}
	fields, ok := attrs["wavegraph.fields"].([]string)
	if !ok || len(fields) != 2 || fields[0] != "frontend_files" {
		t.Errorf("wavegraph.fields = %v", attrs["wavegraph.fields"])
	}
	if span.Status.Code == codes.Error {
		t.Error("successful event should not set error status")
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{ThreadID: "t", Wave: 1, NodeID: "sandbox", Msg: MsgNodeError, Meta: map[string]interface{}{"error": "tests failed"}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "tests failed" {
		t.Errorf("status = %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	events := []Event{
		{ThreadID: "t", Wave: 1, Msg: MsgWaveStart},
		{ThreadID: "t", Wave: 1, NodeID: "a", Msg: MsgNodeStart},
		{ThreadID: "t", Wave: 1, Msg: MsgWaveEnd},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 3 {
		t.Errorf("expected 3 spans, got %d", got)
	}

	if err := emitter.EmitBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
