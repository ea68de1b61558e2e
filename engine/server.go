package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/subsystem-go/radix"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Defaults applied by ServerConfig.withDefaults.
const (
	DefaultRouteDir     = "routes"
	DefaultConfigPrefix = "subsystem"
	DefaultEnvFile      = ".env"
)

// ServerConfig describes one server bootstrap.
type ServerConfig struct {
	// Cwd is the directory module and route files are discovered in. Defaults to the process cwd.
	Cwd string

	// RouteDirs are searched for routes, relative to Cwd. Defaults to "routes".
	RouteDirs []string

	// Presets are module hints folded in before the directory components.
	Presets []string

	// Name of the application. Defaults to the base name of Cwd.
	Name string

	// ConfigPrefix selects the environment variables used as configuration. Defaults to "subsystem".
	ConfigPrefix string

	// EnvFile is read before the process environment. Defaults to "<Cwd>/.env".
	EnvFile string

	// Execute names a route to run once instead of starting the adaptors.
	Execute string

	// ExecuteInput is the input passed to the executed route.
	ExecuteInput subsystem.Input

	// Stdout receives the output of the executed route. Defaults to os.Stdout.
	Stdout io.Writer
}

func (c ServerConfig) withDefaults() (ServerConfig, error) {
	if c.Cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return c, err
		}

		c.Cwd = cwd
	}

	if len(c.RouteDirs) == 0 {
		c.RouteDirs = []string{DefaultRouteDir}
	}

	if c.Name == "" {
		abs, err := filepath.Abs(c.Cwd)
		if err != nil {
			return c, err
		}

		c.Name = filepath.Base(abs)
	}

	if c.ConfigPrefix == "" {
		c.ConfigPrefix = DefaultConfigPrefix
	}

	if c.EnvFile == "" {
		c.EnvFile = filepath.Join(c.Cwd, DefaultEnvFile)
	} else if !filepath.IsAbs(c.EnvFile) {
		c.EnvFile = filepath.Join(c.Cwd, c.EnvFile)
	}

	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}

	return c, nil
}

// Server is a bootstrapped application: frozen state, compiled routes and the adaptors to run.
type Server struct {
	rt     *Runtime
	config ServerConfig
	app    subsystem.Application
	state  *subsystem.State
	router *router
}

// Bootstrap assembles the application, loads configuration and shared context, and compiles every
// route. Any error is fatal; no partially bootstrapped server is returned.
func (r *Runtime) Bootstrap(ctx context.Context, config ServerConfig) (*Server, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	loader := r.newLoader(config.Cwd)

	app, err := r.Assemble(ctx, loader, config.Presets)
	if err != nil {
		return nil, err
	}

	app = InstrumentApplication(app, r.tracingCollector, r.instrumentOptions...)

	envConfig, err := LoadEnvConfig(config.ConfigPrefix, config.EnvFile, r.environ())
	if err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	builder := subsystem.NewStateBuilder(config.Name)
	if err = builder.SeedConfig(envConfig); err != nil {
		return nil, err
	}

	if err = builder.LoadConfig(ctx, app.Config); err != nil {
		return nil, err
	}

	if err = builder.LoadContext(ctx, app.Context); err != nil {
		return nil, err
	}

	routes, err := loader.LoadRoutes(ctx, config.RouteDirs)
	if err != nil {
		return nil, err
	}

	tree := radix.New[*pipeline]()
	locations := make(map[string]string, len(routes))

	for _, route := range routes {
		compiled, compileErr := r.compile(ctx, app, builder.State(), route)
		if compileErr != nil {
			return nil, compileErr
		}

		if insertErr := tree.Insert(compiled.route, compiled); insertErr != nil {
			if errors.Is(insertErr, radix.ErrDuplicateKey) {
				return nil, &subsystem.DuplicateRouteError{
					Route:     compiled.route,
					Locations: []string{locations[compiled.route], route.File},
				}
			}

			return nil, insertErr
		}

		locations[compiled.route] = route.File

		if err = builder.AddRoute(compiled.route); err != nil {
			return nil, err
		}

		r.logDebug(ctx, logMsgRouteRegistered, logAttrRoute, compiled.route, logAttrFile, route.File)
	}

	tree.Freeze()
	state := builder.Freeze()

	r.logInfo(ctx, logMsgBootstrapped, logAttrRoutes, tree.Len(), logAttrAdaptors, len(app.Adaptor))

	return &Server{
		rt:     r,
		config: config,
		app:    app,
		state:  state,
		router: &router{rt: r, tree: tree, state: state, healthCheck: app.HealthCheck},
	}, nil
}

// State returns the frozen server state.
func (s *Server) State() *subsystem.State {
	return s.state
}

// Router returns the router handle adaptors receive.
func (s *Server) Router() subsystem.Router {
	return s.router
}

// Application returns the assembled application.
func (s *Server) Application() subsystem.Application {
	return s.app
}

// Execute runs one route and writes its output as JSON to w.
// It returns ErrRouteNotFound for unknown routes; a failed invocation is not an error.
func (s *Server) Execute(ctx context.Context, route string, input subsystem.Input, w io.Writer) (*subsystem.CallContext, error) {
	s.rt.logInfo(ctx, logMsgExecuteRoute, logAttrRoute, route)

	call, err := s.router.Call(ctx, route, input, nil)
	if err != nil {
		return nil, err
	}

	encoder := jsoniter.ConfigFastest.NewEncoder(w)
	if err = encoder.Encode(call.Output); err != nil {
		return call, err
	}

	return call, nil
}

// Run starts every adaptor and blocks until all of them returned.
// The first adaptor error cancels the others. Without adaptors Run fails with a MissingModuleError.
func (s *Server) Run(ctx context.Context) error {
	if len(s.app.Adaptor) == 0 {
		return &subsystem.MissingModuleError{Hint: "adaptor", Shape: string(ShapeAdaptor)}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for _, adaptor := range s.app.Adaptor {
		group.Go(func() error {
			s.rt.logInfo(groupCtx, logMsgAdaptorStarting, logAttrStage, adaptor.Meta().String())

			_, err := invokeSafely(groupCtx, adaptor, subsystem.Attachment{State: s.state, Router: s.router})

			s.rt.logInfo(groupCtx, logMsgAdaptorStopped, logAttrStage, adaptor.Meta().String())

			if err != nil {
				return fmt.Errorf("adaptor %s: %w", adaptor.Meta(), err)
			}

			return nil
		})
	}

	return group.Wait()
}

// StartServer bootstraps a server and either executes config.Execute or runs the adaptors.
func StartServer(ctx context.Context, config ServerConfig, opts ...Option) error {
	rt, err := New(opts...)
	if err != nil {
		return err
	}

	server, err := rt.Bootstrap(ctx, config)
	if err != nil {
		return err
	}

	if server.config.Execute != "" {
		_, err = server.Execute(ctx, server.config.Execute, server.config.ExecuteInput, server.config.Stdout)
		return err
	}

	return server.Run(ctx)
}
