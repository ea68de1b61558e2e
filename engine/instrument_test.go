package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
	"github.com/AntonStoeckl/subsystem-go/testutil/helper"
)

func doubler() subsystem.Invocable[int, int] {
	return subsystem.NewStage(subsystem.Meta{File: "math.go", Name: "double"},
		func(_ context.Context, in int) (int, error) {
			return in * 2, nil
		})
}

func Test_Instrument_PassesInputAndOutputThrough(t *testing.T) {
	// arrange
	spy := helper.NewTracingCollectorSpy()
	stage := engine.Instrument(doubler(), spy, engine.KindHandle)

	// act
	out, err := stage.Invoke(context.Background(), 21)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, subsystem.Meta{File: "math.go", Name: "double"}, stage.Meta())
	assert.True(t, spy.HasSpanRecordForName("math.go/double").
		WithStatus(subsystem.SpanStatusSuccess).
		WithStartAttribute("stage", "handle").
		Assert())
}

func Test_Instrument_RecordsErrors(t *testing.T) {
	// arrange
	spy := helper.NewTracingCollectorSpy()
	stage := engine.Instrument(subsystem.NewStage(subsystem.Meta{Name: "fails"},
		func(context.Context, int) (int, error) {
			return 0, errors.New("nope")
		}), spy, engine.KindResolver)

	// act
	_, err := stage.Invoke(context.Background(), 1)

	// assert
	assert.EqualError(t, err, "nope")
	assert.True(t, spy.HasSpanRecordForName("fails").
		WithStatus(subsystem.SpanStatusError).
		WithEndAttribute("error", "nope").
		Assert())
}

func Test_Instrument_PanicClosesSpanOnceAndPropagates(t *testing.T) {
	// arrange
	spy := helper.NewTracingCollectorSpy()
	stage := engine.Instrument(subsystem.NewStage(subsystem.Meta{Name: "explodes"},
		func(context.Context, int) (int, error) {
			panic("kaboom")
		}), spy, engine.KindHandle)

	// act
	invoke := func() { _, _ = stage.Invoke(context.Background(), 1) }

	// assert
	assert.PanicsWithValue(t, "kaboom", invoke)
	assert.True(t, spy.HasSpanRecordForName("explodes").
		WithStatus(subsystem.SpanStatusError).
		WithEndAttribute("panic", "kaboom").
		Assert())
	assert.True(t, spy.AllSpansFinishedOnce())
}

func Test_Instrument_WithParentOverridesInvocationContext(t *testing.T) {
	// arrange
	spy := helper.NewTracingCollectorSpy()
	parentCtx, parent := spy.StartSpan(context.Background(), "bootstrap", nil)
	stage := engine.Instrument(doubler(), spy, engine.KindConfig, engine.WithParent(parentCtx))

	// act
	_, err := stage.Invoke(context.Background(), 1)
	spy.FinishSpan(parent, subsystem.SpanStatusSuccess, nil)

	// assert
	require.NoError(t, err)
	assert.True(t, spy.HasSpanRecordForName("math.go/double").WithParent("bootstrap").Assert())
}

func Test_InstrumentApplication_SkipsAdaptorsByDefault(t *testing.T) {
	// arrange
	spy := helper.NewTracingCollectorSpy()
	app := subsystem.Application{
		Config: []subsystem.Invocable[*subsystem.State, subsystem.Values]{
			subsystem.NewStage(subsystem.Meta{File: "config.go", Name: "config"},
				func(context.Context, *subsystem.State) (subsystem.Values, error) { return nil, nil }),
		},
		Adaptor: []subsystem.Invocable[subsystem.Attachment, subsystem.Done]{
			subsystem.NewStage(subsystem.Meta{File: "http.go", Name: "adaptor"},
				func(context.Context, subsystem.Attachment) (subsystem.Done, error) { return subsystem.Done{}, nil }),
		},
	}

	// act
	instrumented := engine.InstrumentApplication(app, spy)
	_, _ = instrumented.Config[0].Invoke(context.Background(), nil)
	_, _ = instrumented.Adaptor[0].Invoke(context.Background(), subsystem.Attachment{})

	// assert
	assert.Equal(t, []string{"config.go/config"}, spy.GetSpanNames())
}

func Test_InstrumentApplication_IncludeAndExclude(t *testing.T) {
	// arrange
	spy := helper.NewTracingCollectorSpy()
	configStage := subsystem.NewStage(subsystem.Meta{File: "config.go", Name: "config"},
		func(context.Context, *subsystem.State) (subsystem.Values, error) { return nil, nil })
	contextStage := subsystem.NewStage(subsystem.Meta{File: "context.go", Name: "context"},
		func(context.Context, *subsystem.State) (subsystem.Values, error) { return nil, nil })
	app := subsystem.Application{
		Config:  []subsystem.Invocable[*subsystem.State, subsystem.Values]{configStage},
		Context: []subsystem.Invocable[*subsystem.State, subsystem.Values]{contextStage},
	}

	// act
	included := engine.InstrumentApplication(app, spy, engine.WithInclude(engine.KindContext))
	_, _ = included.Config[0].Invoke(context.Background(), nil)
	_, _ = included.Context[0].Invoke(context.Background(), nil)
	excluded := engine.InstrumentApplication(app, spy, engine.WithExclude(engine.KindContext))
	_, _ = excluded.Config[0].Invoke(context.Background(), nil)
	_, _ = excluded.Context[0].Invoke(context.Background(), nil)

	// assert
	assert.Equal(t, []string{"context.go/context", "config.go/config"}, spy.GetSpanNames())
}

func Test_Call_IsTracedAndMeasured(t *testing.T) {
	// arrange
	tracing := helper.NewTracingCollectorSpy()
	metrics := helper.NewMetricsCollectorSpy()
	registry := engine.NewRegistry()
	registry.RegisterRoute("routes", "hello", helper.Respond(200, "world"))
	server := helper.GivenServer(t, registry, t.TempDir(), nil, engine.WithTracing(tracing), engine.WithMetrics(metrics))
	tracing.Reset()

	// act
	call := helper.MustCall(t, server.Router(), "hello", subsystem.Input{})

	// assert
	assert.True(t, tracing.HasSpanRecordForName("call hello").
		WithStatus(subsystem.SpanStatusSuccess).
		WithStartAttribute("call.id", call.ID).
		WithEndAttribute("output.code", "200").
		Assert())
	assert.True(t, tracing.HasSpanRecordForName("handle").WithParent("call hello").Assert())
	assert.True(t, tracing.HasSpanRecordForName("instrument_test.go/handle").WithParent("handle").Assert())
	assert.True(t, tracing.AllSpansFinishedOnce())
	assert.True(t, metrics.HasCounterRecord("subsystem_calls_total", map[string]string{"route": "hello", "status": "success"}))
	assert.True(t, metrics.HasDurationRecord("subsystem_call_duration_seconds", map[string]string{"route": "hello"}))
}

func Test_Call_PanickingHandleClosesEverySpanOnce(t *testing.T) {
	// arrange
	tracing := helper.NewTracingCollectorSpy()
	metrics := helper.NewMetricsCollectorSpy()
	registry := engine.NewRegistry()
	registry.RegisterRoute("routes", "panics", func(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
		panic("kaputt")
	})
	server := helper.GivenServer(t, registry, t.TempDir(), nil, engine.WithTracing(tracing), engine.WithMetrics(metrics))
	tracing.Reset()

	// act
	call := helper.MustCall(t, server.Router(), "panics", subsystem.Input{})

	// assert
	assert.Equal(t, 500, call.Output.Code)
	assert.True(t, tracing.HasSpanRecordForName("instrument_test.go/handle").
		WithStatus(subsystem.SpanStatusError).
		WithEndAttribute("panic", "kaputt").
		Assert())
	assert.True(t, tracing.HasSpanRecordForName("call panics").WithStatus(subsystem.SpanStatusError).Assert())
	assert.True(t, tracing.HasSpanRecordForName("error").WithEndAttribute("unhandled", "false").Assert())
	assert.True(t, tracing.AllSpansFinishedOnce())
	assert.True(t, metrics.HasCounterRecord("subsystem_call_errors_total", map[string]string{"error_type": "panic"}))
}
