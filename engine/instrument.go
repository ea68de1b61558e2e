package engine

import (
	"context"
	"fmt"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// StageKind names a stage list of the Application for instrumentation filters.
type StageKind string

// Stage kinds.
const (
	KindConfig         StageKind = "config"
	KindContext        StageKind = "context"
	KindRequestContext StageKind = "requestContext"
	KindHandler        StageKind = "handler"
	KindHandle         StageKind = "handle"
	KindResolver       StageKind = "resolver"
	KindError          StageKind = "error"
	KindHealthCheck    StageKind = "healthcheck"
	KindAdaptor        StageKind = "adaptor"
)

// adaptors run for the process lifetime, so they get no span unless included explicitly.
var defaultExcludedKinds = map[StageKind]bool{KindAdaptor: true}

type instrumentConfig struct {
	include map[StageKind]bool
	exclude map[StageKind]bool
	parent  context.Context
}

// InstrumentOption configures Instrument and InstrumentApplication.
type InstrumentOption func(*instrumentConfig)

// WithInclude restricts instrumentation to the given kinds.
func WithInclude(kinds ...StageKind) InstrumentOption {
	return func(c *instrumentConfig) {
		c.include = make(map[StageKind]bool, len(kinds))
		for _, kind := range kinds {
			c.include[kind] = true
		}
	}
}

// WithExclude skips the given kinds.
func WithExclude(kinds ...StageKind) InstrumentOption {
	return func(c *instrumentConfig) {
		if c.exclude == nil {
			c.exclude = make(map[StageKind]bool, len(kinds))
		}

		for _, kind := range kinds {
			c.exclude[kind] = true
		}
	}
}

// WithParent parents every span to the span carried by ctx instead of the invocation context.
func WithParent(ctx context.Context) InstrumentOption {
	return func(c *instrumentConfig) {
		c.parent = ctx
	}
}

func newInstrumentConfig(opts []InstrumentOption) *instrumentConfig {
	c := &instrumentConfig{exclude: make(map[StageKind]bool)}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *instrumentConfig) covers(kind StageKind) bool {
	if c.exclude[kind] {
		return false
	}

	if c.include != nil {
		return c.include[kind]
	}

	return !defaultExcludedKinds[kind]
}

type instrumented[I, O any] struct {
	inner  subsystem.Invocable[I, O]
	tracer subsystem.TracingCollector
	kind   StageKind
	parent context.Context
}

// Instrument wraps inv so that every invocation runs inside its own span.
//
// The span is named after the stage Meta and parented to the span in the invocation context, or to
// the one supplied with WithParent. The wrapped stage sees the same input and its output and error
// are returned unchanged. The span is finished exactly once: with success, with error, or with error
// before a panic is propagated.
func Instrument[I, O any](inv subsystem.Invocable[I, O], tracer subsystem.TracingCollector, kind StageKind, opts ...InstrumentOption) subsystem.Invocable[I, O] {
	if inv == nil || tracer == nil {
		return inv
	}

	c := newInstrumentConfig(opts)

	return &instrumented[I, O]{inner: inv, tracer: tracer, kind: kind, parent: c.parent}
}

func (i *instrumented[I, O]) Meta() subsystem.Meta {
	return i.inner.Meta()
}

func (i *instrumented[I, O]) Invoke(ctx context.Context, in I) (out O, err error) {
	name := i.inner.Meta().String()
	if name == "" {
		name = string(i.kind)
	}

	spanParent := ctx
	if i.parent != nil {
		spanParent = i.parent
	}

	spanCtx, span := i.tracer.StartSpan(spanParent, name, map[string]string{spanAttrStage: string(i.kind)})

	innerCtx := spanCtx
	if i.parent != nil {
		innerCtx = ctx
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			i.finish(span, subsystem.SpanStatusError, map[string]string{spanAttrPanic: fmt.Sprint(recovered)})
			panic(recovered)
		}
	}()

	out, err = i.inner.Invoke(innerCtx, in)

	if err != nil {
		i.finish(span, subsystem.SpanStatusError, map[string]string{spanAttrError: err.Error()})
	} else {
		i.finish(span, subsystem.SpanStatusSuccess, nil)
	}

	return out, err
}

func (i *instrumented[I, O]) finish(span subsystem.SpanContext, status string, attrs map[string]string) {
	if span != nil {
		i.tracer.FinishSpan(span, status, attrs)
	}
}

// InstrumentApplication returns a copy of app with every covered stage wrapped by Instrument.
// Adaptors are excluded unless WithInclude names them.
func InstrumentApplication(app subsystem.Application, tracer subsystem.TracingCollector, opts ...InstrumentOption) subsystem.Application {
	if tracer == nil {
		return app
	}

	c := newInstrumentConfig(opts)

	return subsystem.Application{
		Config:         instrumentAll(app.Config, tracer, KindConfig, c, opts),
		Context:        instrumentAll(app.Context, tracer, KindContext, c, opts),
		RequestContext: instrumentAll(app.RequestContext, tracer, KindRequestContext, c, opts),
		Handler:        instrumentOne(app.Handler, tracer, KindHandler, c, opts),
		Error:          instrumentAll(app.Error, tracer, KindError, c, opts),
		HealthCheck:    instrumentAll(app.HealthCheck, tracer, KindHealthCheck, c, opts),
		Adaptor:        instrumentAll(app.Adaptor, tracer, KindAdaptor, c, opts),
	}
}

func instrumentOne[I, O any](
	inv subsystem.Invocable[I, O],
	tracer subsystem.TracingCollector,
	kind StageKind,
	c *instrumentConfig,
	opts []InstrumentOption,
) subsystem.Invocable[I, O] {
	if !c.covers(kind) {
		return inv
	}

	return Instrument(inv, tracer, kind, opts...)
}

func instrumentAll[I, O any](
	stages []subsystem.Invocable[I, O],
	tracer subsystem.TracingCollector,
	kind StageKind,
	c *instrumentConfig,
	opts []InstrumentOption,
) []subsystem.Invocable[I, O] {
	if stages == nil {
		return nil
	}

	out := make([]subsystem.Invocable[I, O], len(stages))
	for i, stage := range stages {
		out[i] = instrumentOne(stage, tracer, kind, c, opts)
	}

	return out
}
