package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns traversal events into OpenTelemetry spans, one span per
// event (edge selections and variable evaluations are points in time, not
// durations, so spans are started and ended immediately rather than left
// open across the request).
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter builds an OTelEmitter from a tracer obtained via
// otel.Tracer("qflow").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()
	o.annotate(span, event)
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.annotate(span, event)
		span.End()
	}
	return nil
}

// Flush force-flushes the global tracer provider, if it supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// knownMetaKeys maps a handful of domain-specific meta keys to a
// qflow-namespaced attribute name; every other key is attached verbatim,
// matching the teacher's "remap the known ones, pass through the rest"
// convention for arbitrary per-event metadata.
var knownMetaKeys = map[string]string{
	"dialect":     "qflow.eval.dialect",
	"duration_ms": "qflow.eval.duration_ms",
	"action_type": "qflow.action.type",
}

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("qflow.trace_id", event.TraceID),
		attribute.Int("qflow.step", event.Step),
		attribute.String("qflow.node_id", event.NodeID),
	)
	for key, v := range event.Meta {
		attrKey := key
		if mapped, ok := knownMetaKeys[key]; ok {
			attrKey = mapped
		}
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, val))
		case int:
			span.SetAttributes(attribute.Int(attrKey, val))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, val))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, val))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, val))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(val/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", val)))
		}
	}
	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}
