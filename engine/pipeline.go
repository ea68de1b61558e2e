package engine

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// metaID is the caller meta key that overrides the generated call ID.
const metaID = "id"

// pipeline is the compiled call sequence of one route.
type pipeline struct {
	rt             *Runtime
	route          string
	state          *subsystem.State
	requestContext []subsystem.Invocable[*subsystem.CallContext, subsystem.Values]
	resolvers      []subsystem.Invocable[*subsystem.CallContext, subsystem.Values]
	handle         subsystem.Invocable[*subsystem.CallContext, subsystem.Result]
	errorChain     []subsystem.Invocable[subsystem.Failure, *subsystem.Output]
}

// compile resolves the handler of route and captures everything one invocation needs.
func (r *Runtime) compile(
	ctx context.Context,
	app subsystem.Application,
	state *subsystem.State,
	route subsystem.Route,
) (*pipeline, error) {
	handler, err := invokeSafely(ctx, app.Handler, subsystem.Resolution{State: state, Route: route})
	if err != nil {
		return nil, err
	}

	if handler.Handle == nil {
		return nil, &subsystem.ShapeValidationError{Location: route.File, Shape: "route", Err: subsystem.ErrMissingHandle}
	}

	name := route.Name
	if handler.Name != "" {
		name = handler.Name
	}

	handle := subsystem.NewStage[*subsystem.CallContext, subsystem.Result](
		subsystem.Meta{File: route.File, Name: "handle"}, handler.Handle)

	p := &pipeline{
		rt:             r,
		route:          name,
		state:          state,
		requestContext: app.RequestContext,
		handle:         instrumentRouteStage(r, handle, KindHandle),
		errorChain:     app.Error,
	}

	for i, resolver := range handler.Resolvers {
		stage := subsystem.NewStage[*subsystem.CallContext, subsystem.Values](
			subsystem.Meta{File: route.File, Name: "resolver#" + strconv.Itoa(i)}, resolver)
		p.resolvers = append(p.resolvers, instrumentRouteStage(r, stage, KindResolver))
	}

	return p, nil
}

func instrumentRouteStage[O any](
	r *Runtime,
	stage subsystem.Invocable[*subsystem.CallContext, O],
	kind StageKind,
) subsystem.Invocable[*subsystem.CallContext, O] {
	if r.tracingCollector == nil || !newInstrumentConfig(r.instrumentOptions).covers(kind) {
		return stage
	}

	return Instrument(stage, r.tracingCollector, kind, r.instrumentOptions...)
}

// call runs one invocation. It never fails: every error ends up in the returned CallContext.
func (p *pipeline) call(ctx context.Context, input subsystem.Input, meta subsystem.Values) *subsystem.CallContext {
	start := time.Now()
	call := p.newCallContext(input, meta)

	ctx, span := p.rt.startTraceSpan(ctx, spanNameCallPrefix+p.route, map[string]string{
		spanAttrRoute:  p.route,
		spanAttrCallID: call.ID,
	})

	err := p.resolveRequestContext(ctx, call)
	if err == nil {
		err = p.runHandle(ctx, call)
	}

	if err != nil {
		p.runErrorChain(ctx, err, call)
	}

	p.finish(ctx, span, call, err, time.Since(start))

	return call
}

// newCallContext builds a fresh CallContext with a private copy of the shared context.
func (p *pipeline) newCallContext(input subsystem.Input, meta subsystem.Values) *subsystem.CallContext {
	id, _ := meta[metaID].(string)
	if id == "" {
		id = uuid.NewString()
	}

	callContext := subsystem.DeepCopy(p.state.Context())
	if meta != nil {
		subsystem.MergeValues(callContext, meta)
	}

	if input.Headers == nil {
		input.Headers = map[string]string{}
	}

	return &subsystem.CallContext{
		ID:      id,
		Route:   p.route,
		Config:  p.state.Config(),
		Context: callContext,
		Input:   input,
		Output:  subsystem.NewOutput(),
		State:   p.state,
	}
}

// resolveRequestContext runs the request-context stages, then the route's resolvers.
func (p *pipeline) resolveRequestContext(ctx context.Context, call *subsystem.CallContext) error {
	if len(p.requestContext) == 0 && len(p.resolvers) == 0 {
		return nil
	}

	ctx, span := p.rt.startTraceSpan(ctx, spanNameRequestContext, map[string]string{spanAttrRoute: p.route})

	err := p.mergeContext(ctx, call, p.requestContext)
	if err == nil {
		err = p.mergeContext(ctx, call, p.resolvers)
	}

	p.rt.finishTraceSpan(span, statusOf(err), nil)

	return err
}

func (p *pipeline) mergeContext(
	ctx context.Context,
	call *subsystem.CallContext,
	stages []subsystem.Invocable[*subsystem.CallContext, subsystem.Values],
) error {
	for _, stage := range stages {
		values, err := invokeSafely(ctx, stage, call)
		if err != nil {
			return err
		}

		call.Context = subsystem.MergeValues(call.Context, values)
	}

	return nil
}

// runHandle invokes the handle and merges its result into the CallContext.
func (p *pipeline) runHandle(ctx context.Context, call *subsystem.CallContext) error {
	ctx, span := p.rt.startTraceSpan(ctx, spanNameHandle, map[string]string{spanAttrRoute: p.route})

	result, err := invokeSafely(ctx, p.handle, call)
	if err == nil {
		call.Output.MergeOutput(result.Output)
		if result.Error != nil {
			call.Error = result.Error
		}
	}

	p.rt.finishTraceSpan(span, statusOf(err), nil)

	return err
}

// runErrorChain runs every error stage in order and merges the outputs they return.
// When no stage set a failure code the runtime escalates with the default mapping.
func (p *pipeline) runErrorChain(ctx context.Context, err error, call *subsystem.CallContext) {
	call.Error = err

	ctx, span := p.rt.startTraceSpan(ctx, spanNameErrorChain, map[string]string{spanAttrRoute: p.route})

	for _, stage := range p.errorChain {
		output, stageErr := invokeSafely(ctx, stage, subsystem.Failure{Err: err, Call: call})
		if stageErr != nil {
			p.rt.logWarn(ctx, logMsgErrorStageFailed, stageErr,
				logAttrRoute, p.route, logAttrCallID, call.ID, logAttrStage, stage.Meta().String())

			continue
		}

		call.Output.MergeOutput(output)
	}

	if !call.Failed() {
		escalated := p.rt.failureOutput(ctx, err, call)
		if !subsystem.IsFailureCode(escalated.Code) {
			escalated = p.rt.failureOutput(ctx, errUnmappedFailure{err}, call)
		}

		call.Output.Code = escalated.Code
		call.Output.Body = escalated.Body
		call.Output.MergeOutput(&subsystem.Output{Headers: escalated.Headers})
		call.Unhandled = true
	}

	p.rt.finishTraceSpan(span, subsystem.SpanStatusSuccess, map[string]string{
		spanAttrCode:      strconv.Itoa(call.Output.Code),
		spanAttrUnhandled: strconv.FormatBool(call.Unhandled),
	})
}

// finish closes the root span and records call metrics.
func (p *pipeline) finish(ctx context.Context, span subsystem.SpanContext, call *subsystem.CallContext, err error, duration time.Duration) {
	status := subsystem.SpanStatusSuccess
	if call.Failed() {
		status = subsystem.SpanStatusError
	}

	attrs := map[string]string{spanAttrCode: strconv.Itoa(call.Output.Code)}
	if err != nil {
		attrs[spanAttrError] = err.Error()
	}

	p.rt.finishTraceSpan(span, status, attrs)

	labels := map[string]string{"route": p.route, "status": status}
	p.rt.recordDuration(ctx, metricCallDuration, duration, labels)
	p.rt.incrementCounter(ctx, metricCalls, labels)

	if err != nil {
		p.rt.incrementCounter(ctx, metricCallErrors, map[string]string{"route": p.route, "error_type": errorType(err)})
	}

	p.rt.logDebug(ctx, logMsgCallFinished,
		logAttrRoute, p.route,
		logAttrCallID, call.ID,
		logAttrCode, call.Output.Code,
		logAttrDurationMS, toMilliseconds(duration))
}

// errUnmappedFailure turns a structured error with a success code into a plain failure.
type errUnmappedFailure struct{ cause error }

func (e errUnmappedFailure) Error() string { return e.cause.Error() }

// invokeSafely invokes stage and converts a panic into a PanicError.
func invokeSafely[I, O any](ctx context.Context, stage subsystem.Invocable[I, O], in I) (out O, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &subsystem.PanicError{Value: recovered, Stack: debug.Stack()}
		}
	}()

	return stage.Invoke(ctx, in)
}

func statusOf(err error) string {
	if err != nil {
		return subsystem.SpanStatusError
	}

	return subsystem.SpanStatusSuccess
}
