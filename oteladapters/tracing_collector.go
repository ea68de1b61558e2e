package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// attribute keys that describe a failure are also recorded as span events.
const (
	attrError = "error"
	attrPanic = "panic"
)

// TracingCollector implements subsystem.TracingCollector with an OpenTelemetry tracer.
// Spans started for stages inherit the span found in the invocation context.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a tracing collector. The tracer comes from your TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts an internal span carrying attrs and returns the context holding it.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, subsystem.SpanContext) {
	spanCtx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(toAttributes(attrs)...),
	)

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan adds attrs, maps status to a span status and ends the span.
// Spans not started by this collector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx subsystem.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(toAttributes(attrs)...)

	if message, failed := failureMessage(attrs); failed {
		otelSpanCtx.span.AddEvent("exception", trace.WithAttributes(attribute.String("exception.message", message)))
	}

	otelSpanCtx.setSpanStatus(status, attrs[attrError])
	otelSpanCtx.span.End()
}

var _ subsystem.TracingCollector = (*TracingCollector)(nil)

// OTelSpanContext implements subsystem.SpanContext over an OpenTelemetry span.
type OTelSpanContext struct {
	span trace.Span
}

// SetStatus maps status to an OpenTelemetry status code.
func (s *OTelSpanContext) SetStatus(status string) {
	s.setSpanStatus(status, "")
}

// AddAttribute adds a string attribute to the span.
func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func (s *OTelSpanContext) setSpanStatus(status, description string) {
	switch status {
	case subsystem.SpanStatusSuccess, "ok", "completed":
		s.span.SetStatus(codes.Ok, "")
	case subsystem.SpanStatusError, "failed", "failure":
		if description == "" {
			description = "stage failed"
		}
		s.span.SetStatus(codes.Error, description)
	case "cancelled", "canceled":
		s.span.SetStatus(codes.Error, "stage cancelled")
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

var _ subsystem.SpanContext = (*OTelSpanContext)(nil)

func failureMessage(attrs map[string]string) (string, bool) {
	if message, ok := attrs[attrPanic]; ok {
		return "panic: " + message, true
	}

	message, ok := attrs[attrError]

	return message, ok
}

func toAttributes(attrs map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		kvs = append(kvs, attribute.String(key, value))
	}

	return kvs
}
