// Package engine assembles applications from modules and runs them.
//
// Bootstrap proceeds in a fixed order:
//
//  1. presets and the directory components (config, context, handler, adaptor, error, healthcheck)
//     are loaded and folded into one subsystem.Application
//  2. configuration is read from the environment, then from every config stage
//  3. the shared context is built from every context stage
//  4. routes are discovered, compiled into call pipelines and inserted into a radix tree
//  5. the state is frozen and either one route is executed or the adaptors are started
//
// Modules come from a Registry (populated by Register and RegisterRoute, usually from init
// functions) and from declarative YAML or JSON files discovered below the working directory.
//
// Example:
//
//	func init() {
//		engine.RegisterRoute("routes", "hello", func(ctx context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
//			return subsystem.Result{Output: &subsystem.Output{Body: "world"}}, nil
//		})
//	}
//
//	func main() {
//		err := engine.StartServer(ctx, engine.ServerConfig{Presets: []string{"http"}},
//			engine.WithLogger(slog.Default()))
//	}
package engine
