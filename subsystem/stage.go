package subsystem

import (
	"context"
)

// Meta identifies where a stage function came from. It names tracing spans and log records.
type Meta struct {
	File string
	Name string
}

// String returns "file/name", or whichever part is set.
func (m Meta) String() string {
	switch {
	case m.File == "":
		return m.Name
	case m.Name == "":
		return m.File
	default:
		return m.File + "/" + m.Name
	}
}

// Stage function signatures a Module may export.
type (
	ConfigFunc         func(ctx context.Context, state *State) (Values, error)
	ContextFunc        func(ctx context.Context, state *State) (Values, error)
	RequestContextFunc func(ctx context.Context, call *CallContext) (Values, error)
	ResolverFunc       func(ctx context.Context, call *CallContext) (Values, error)
	HandleFunc         func(ctx context.Context, call *CallContext) (Result, error)
	HandlerFunc        func(ctx context.Context, state *State, route Route) (Handler, error)
	ErrorFunc          func(ctx context.Context, err error, call *CallContext) (*Output, error)
	HealthCheckFunc    func(ctx context.Context, state *State) error
	AdaptorFunc        func(ctx context.Context, state *State, router Router) error
)

// Resolution is the input of the handler-resolution stage.
type Resolution struct {
	State *State
	Route Route
}

// Failure is the input of an error stage.
type Failure struct {
	Err  error
	Call *CallContext
}

// Attachment is the input of an adaptor stage.
type Attachment struct {
	State  *State
	Router Router
}

// Invocable is the common capability of every composable stage.
// Decorators wrap one Invocable to produce another with the same contract.
type Invocable[I, O any] interface {
	Invoke(ctx context.Context, in I) (O, error)
	Meta() Meta
}

type stage[I, O any] struct {
	meta Meta
	fn   func(ctx context.Context, in I) (O, error)
}

// NewStage turns a plain function into an Invocable tagged with meta.
func NewStage[I, O any](meta Meta, fn func(ctx context.Context, in I) (O, error)) Invocable[I, O] {
	return &stage[I, O]{meta: meta, fn: fn}
}

func (s *stage[I, O]) Invoke(ctx context.Context, in I) (O, error) {
	return s.fn(ctx, in)
}

func (s *stage[I, O]) Meta() Meta {
	return s.meta
}

// Done is the empty output of stages that only report success or failure.
type Done = struct{}
