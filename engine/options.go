package engine

import (
	"errors"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

var (
	// ErrNilRegistry is returned when a nil registry is provided to WithRegistry.
	ErrNilRegistry = errors.New("registry must not be nil")

	// ErrNilSource is returned when a nil module source is provided to WithSources.
	ErrNilSource = errors.New("module source must not be nil")
)

// Option defines a functional option for configuring the Runtime.
type Option func(*Runtime) error

// WithRegistry sets the registry used for explicit module registrations.
// It defaults to the package-level registry populated by Register and RegisterRoute.
func WithRegistry(registry *Registry) Option {
	return func(r *Runtime) error {
		if registry == nil {
			return ErrNilRegistry
		}

		r.registry = registry

		return nil
	}
}

// WithSources replaces the default module sources (registry first, then the working directory).
func WithSources(sources ...ModuleSource) Option {
	return func(r *Runtime) error {
		for _, source := range sources {
			if source == nil {
				return ErrNilSource
			}
		}

		r.sources = sources

		return nil
	}
}

// WithLogger sets the logger for the Runtime.
//
// Debug level: stage execution details
// Info level: bootstrap progress and adaptor lifecycle
// Warn level: failing error stages and health checks
// Error level: unstructured request errors.
func WithLogger(logger subsystem.Logger) Option {
	return func(r *Runtime) error {
		r.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over the plain logger when both are set.
func WithContextualLogger(logger subsystem.ContextualLogger) Option {
	return func(r *Runtime) error {
		r.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Runtime.
func WithMetrics(collector subsystem.MetricsCollector) Option {
	return func(r *Runtime) error {
		r.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Runtime.
// Every stage of the assembled application is instrumented with it.
func WithTracing(collector subsystem.TracingCollector) Option {
	return func(r *Runtime) error {
		r.tracingCollector = collector
		return nil
	}
}

// WithInstrumentation sets the options used when instrumenting the assembled application.
func WithInstrumentation(opts ...InstrumentOption) Option {
	return func(r *Runtime) error {
		r.instrumentOptions = opts
		return nil
	}
}

// WithEnviron replaces the process environment used for configuration, mostly for tests.
func WithEnviron(environ []string) Option {
	return func(r *Runtime) error {
		r.environ = func() []string { return environ }
		return nil
	}
}
