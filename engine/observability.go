package engine

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Log messages.
const (
	logMsgAssembled         = "application assembled"
	logMsgBootstrapped      = "server bootstrapped"
	logMsgRouteRegistered   = "route registered"
	logMsgAdaptorStarting   = "adaptor starting"
	logMsgAdaptorStopped    = "adaptor stopped"
	logMsgUnstructuredError = "unstructured request error"
	logMsgErrorStageFailed  = "error stage failed"
	logMsgHealthCheckFailed = "health check failed"
	logMsgCallFinished      = "call finished"
	logMsgExecuteRoute      = "executing route"
)

// Log attribute keys.
const (
	logAttrError      = "error"
	logAttrRoute      = "route"
	logAttrCallID     = "call_id"
	logAttrStage      = "stage"
	logAttrCode       = "code"
	logAttrDurationMS = "duration_ms"
	logAttrPresets    = "presets"
	logAttrRoutes     = "routes"
	logAttrAdaptors   = "adaptors"
	logAttrFile       = "file"
)

// Span names and attributes.
const (
	spanNameCallPrefix     = "call "
	spanNameRequestContext = "requestContext"
	spanNameHandle         = "handle"
	spanNameErrorChain     = "error"
	spanAttrRoute          = "route"
	spanAttrCallID         = "call.id"
	spanAttrCode           = "output.code"
	spanAttrUnhandled      = "unhandled"
	spanAttrError          = "error"
	spanAttrPanic          = "panic"
	spanAttrStage          = "stage"
)

// Metric names.
const (
	metricCallDuration       = "subsystem_call_duration_seconds"
	metricCalls              = "subsystem_calls_total"
	metricCallErrors         = "subsystem_call_errors_total"
	metricHealthCheckFailure = "subsystem_healthcheck_failures_total"
)

// Error types used as metric labels.
const (
	errorTypeStructured   = "structured"
	errorTypeUnstructured = "unstructured"
	errorTypePanic        = "panic"
)

func (r *Runtime) logInfo(ctx context.Context, msg string, args ...any) {
	if r.contextualLogger != nil {
		r.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Runtime) logDebug(ctx context.Context, msg string, args ...any) {
	if r.contextualLogger != nil {
		r.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Runtime) logWarn(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if r.contextualLogger != nil {
		r.contextualLogger.WarnContext(ctx, msg, allArgs...)
		return
	}

	if r.logger != nil {
		r.logger.Warn(msg, allArgs...)
	}
}

func (r *Runtime) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if r.contextualLogger != nil {
		r.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if r.logger != nil {
		r.logger.Error(msg, allArgs...)
	}
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (r *Runtime) startTraceSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, subsystem.SpanContext) {
	if r.tracingCollector != nil {
		return r.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (r *Runtime) finishTraceSpan(span subsystem.SpanContext, status string, attrs map[string]string) {
	if r.tracingCollector != nil && span != nil {
		r.tracingCollector.FinishSpan(span, status, attrs)
	}
}

func (r *Runtime) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if r.metricsCollector == nil {
		return
	}

	if contextual, ok := r.metricsCollector.(subsystem.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	r.metricsCollector.IncrementCounter(metric, labels)
}

func (r *Runtime) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if r.metricsCollector == nil {
		return
	}

	if contextual, ok := r.metricsCollector.(subsystem.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	r.metricsCollector.RecordDuration(metric, duration, labels)
}

// errorType classifies a pipeline failure for metric labels.
func errorType(err error) string {
	var statusErr *subsystem.StatusError
	var panicErr *subsystem.PanicError

	switch {
	case errors.As(err, &panicErr):
		return errorTypePanic
	case errors.As(err, &statusErr):
		return errorTypeStructured
	default:
		return errorTypeUnstructured
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds.
func toMilliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
