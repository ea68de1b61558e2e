package engine

import (
	"os"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Runtime assembles applications and bootstraps servers from them.
// It carries the registry, the module sources and the observability collectors.
type Runtime struct {
	registry          *Registry
	sources           []ModuleSource
	logger            subsystem.Logger
	contextualLogger  subsystem.ContextualLogger
	metricsCollector  subsystem.MetricsCollector
	tracingCollector  subsystem.TracingCollector
	instrumentOptions []InstrumentOption
	environ           func() []string
}

// New creates a Runtime configured by opts.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		registry: defaultRegistry,
		environ:  os.Environ,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Registry returns the registry explicit registrations are read from.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// newLoader returns a loader over the configured sources, or over the registry and cwd.
func (r *Runtime) newLoader(cwd string) *Loader {
	sources := r.sources
	if len(sources) == 0 {
		sources = []ModuleSource{
			NewRegistrySource(r.registry),
			NewDirSource(cwd, r.registry),
		}
	}

	return NewLoader(sources...)
}
