package oteladapters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/oteladapters"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
	"github.com/AntonStoeckl/subsystem-go/testutil/helper"
)

func givenTracingCollector() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func Test_TracingCollector_StartAndFinishSpan(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()

	// act
	_, span := collector.StartSpan(context.Background(), "call hello", map[string]string{"route": "hello"})
	collector.FinishSpan(span, subsystem.SpanStatusSuccess, map[string]string{"output.code": "200"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "call hello", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "route", "hello")
	assertSpanHasAttribute(t, spans[0], "output.code", "200")
}

func Test_TracingCollector_ErrorStatusCarriesMessageAndEvent(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()

	// act
	_, span := collector.StartSpan(context.Background(), "handle", nil)
	collector.FinishSpan(span, subsystem.SpanStatusError, map[string]string{"error": "db down"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "db down", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func Test_TracingCollector_StatusMapping(t *testing.T) {
	for _, tc := range []struct {
		status string
		code   codes.Code
	}{
		{status: "success", code: codes.Ok},
		{status: "ok", code: codes.Ok},
		{status: "error", code: codes.Error},
		{status: "failed", code: codes.Error},
		{status: "canceled", code: codes.Error},
		{status: "something else", code: codes.Unset},
	} {
		t.Run(tc.status, func(t *testing.T) {
			// arrange
			collector, exporter := givenTracingCollector()

			// act
			_, span := collector.StartSpan(context.Background(), "stage", nil)
			collector.FinishSpan(span, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.code, spans[0].Status.Code)
		})
	}
}

func Test_TracingCollector_ChildSpansShareTheTrace(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()

	// act
	ctx, parent := collector.StartSpan(context.Background(), "call hello", nil)
	_, child := collector.StartSpan(ctx, "handle", nil)
	collector.FinishSpan(child, subsystem.SpanStatusSuccess, nil)
	collector.FinishSpan(parent, subsystem.SpanStatusSuccess, nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func Test_TracingCollector_IgnoresForeignSpans(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()

	// act
	collector.FinishSpan(&helper.SpySpanContext{}, subsystem.SpanStatusSuccess, nil)

	// assert
	assert.Empty(t, exporter.GetSpans())
}

func Test_TracingCollector_TracesRuntimeCalls(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()
	registry := engine.NewRegistry()
	registry.RegisterRoute("routes", "broken", helper.Fail(errors.New("boom")))
	server := helper.GivenServer(t, registry, t.TempDir(), nil, engine.WithTracing(collector))
	exporter.Reset()

	// act
	helper.MustCall(t, server.Router(), "broken", subsystem.Input{})

	// assert
	names := make([]string, 0)
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	assert.Contains(t, names, "call broken")
	assert.Contains(t, names, "handle")
	assert.Contains(t, names, "error")
	assert.Contains(t, names, "subsystem/error")
}

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key, value string) {
	t.Helper()

	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) {
			assert.Equal(t, value, attr.Value.AsString())
			return
		}
	}

	t.Errorf("span %q has no attribute %q", span.Name, key)
}
