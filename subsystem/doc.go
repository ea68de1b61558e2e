// Package subsystem provides the core abstractions of a pluggable application runtime.
//
// An application is assembled from modules. Each module contributes lifecycle stages
// (configuration, shared context, per-request context, handler resolution, error handling,
// health checks and adaptors). The engine package folds modules into an Application,
// bootstraps a State and compiles every discovered Route into a call pipeline that is
// reachable through the Router boundary.
//
// Transports, logging, metrics and tracing backends plug in through the narrow interfaces
// defined here; the package itself only depends on jsoniter.
//
// Key types:
//   - Values: arbitrary nested key/value mapping, combined with Merge
//   - Module: a set of optional stage functions contributed by one source
//   - Application: the assembled, ordered stage lists
//   - State: read-only configuration, shared context and route inventory
//   - CallContext: the per-invocation record threaded through the pipeline
//   - Router: the boundary adaptors call into
//
// Common usage pattern:
//
//	engine.RegisterRoute("routes", "hello", func(ctx context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
//		return subsystem.Result{Output: &subsystem.Output{Body: "world"}}, nil
//	})
//
//	call, err := router.Call(ctx, "hello", subsystem.Input{}, nil)
//	if err != nil {
//		// route is unknown
//	}
//	// call.Output == {Headers: {}, Body: "world", Code: 200}
package subsystem
