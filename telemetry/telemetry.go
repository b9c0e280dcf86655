// Package telemetry provides the counters and spans the orchestrator
// core is required to expose (spec: "telemetry hookup beyond the
// counters the core must expose" is a Non-goal; the counters
// themselves are not). It follows the teacher's
// `orchestration/task_telemetry.go` shape: small `Emit*` functions
// wrapping a package-level metric/tracer cache, rather than a
// dependency-injected telemetry client threaded through every call
// site.
//
// No OTLP exporter is wired: callers that want export register their
// own `sdkmetric.MeterProvider` / `sdktrace.TracerProvider` globally
// (via `otel.SetMeterProvider` / `otel.SetTracerProvider`) before
// calling into this package; absent that, the OpenTelemetry API
// falls back to its own no-op implementations, so these functions are
// always safe to call.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/docling-project/docling-task-orchestrator"

var (
	tracer trace.Tracer = otel.Tracer(instrumentationName)

	instrumentsMu sync.Mutex
	counters                = map[string]metric.Int64Counter{}
	meter         metric.Meter
)

func meterOnce() metric.Meter {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	return meter
}

// Counter increments the named counter by one. Safe for concurrent
// use; instruments are created lazily and cached by name.
func Counter(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	instrumentsMu.Lock()
	c, ok := counters[name]
	if !ok {
		var err error
		c, err = meterOnce().Int64Counter(name)
		if err == nil {
			counters[name] = c
		}
	}
	instrumentsMu.Unlock()
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// StartSpan starts a span named name as a child of ctx, returning the
// derived context and the span. Callers must call span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordSpanError marks the current span (if any) as failed and
// attaches err.
func RecordSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ═══════════════════════════════════════════════════════════════════
// Task lifecycle counters (spec: "the core must expose" enqueue,
// dequeue, orphan, and eviction counts)
// ═══════════════════════════════════════════════════════════════════

// EmitEnqueued counts a task admitted to an engine's backing queue.
func EmitEnqueued(ctx context.Context, taskType string) {
	Counter(ctx, "docling.tasks.enqueued", attribute.String("task_type", taskType))
}

// EmitDequeued counts a worker picking a task up for processing.
func EmitDequeued(ctx context.Context, taskType string) {
	Counter(ctx, "docling.tasks.dequeued", attribute.String("task_type", taskType))
}

// EmitCompleted counts a task reaching a terminal status.
func EmitCompleted(ctx context.Context, taskType, status string) {
	Counter(ctx, "docling.tasks.completed",
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	)
}

// EmitOrphaned counts a task the reconciler found stranded by a
// vanished queue-side job record (see reconciler.Reconcile).
func EmitOrphaned(ctx context.Context, taskID string) {
	Counter(ctx, "docling.tasks.orphaned")
	_, span := StartSpan(ctx, "reconciler.orphan_detected", attribute.String("task_id", taskID))
	span.End()
}

// EmitEvicted counts a task's state being removed from cache,
// projection, and result store, individually or via ClearResults.
func EmitEvicted(ctx context.Context, reason string) {
	Counter(ctx, "docling.tasks.evicted", attribute.String("reason", reason))
}
