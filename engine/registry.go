package engine

import (
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Registry holds explicit module, route, handle and resolver registrations.
// Registrations normally happen in init functions; lookups happen during bootstrap.
type Registry struct {
	mu        sync.RWMutex
	modules   map[string][]subsystem.Module
	routes    map[string][]subsystem.Route
	handles   map[string]subsystem.HandleFunc
	resolvers map[string]subsystem.ResolverFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:   make(map[string][]subsystem.Module),
		routes:    make(map[string][]subsystem.Route),
		handles:   make(map[string]subsystem.HandleFunc),
		resolvers: make(map[string]subsystem.ResolverFunc),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the package-level registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a module under a logical name to the package-level registry.
func Register(name string, module subsystem.Module) {
	defaultRegistry.register(name, module, 2)
}

// RegisterRoute adds a route below dir to the package-level registry.
func RegisterRoute(dir, name string, handle subsystem.HandleFunc, resolvers ...subsystem.ResolverFunc) {
	defaultRegistry.registerRoute(dir, name, handle, resolvers, 2)
}

// RegisterHandle adds a named handle that declarative route files can refer to.
func RegisterHandle(name string, handle subsystem.HandleFunc) {
	defaultRegistry.RegisterHandle(name, handle)
}

// RegisterResolver adds a named resolver that declarative route files can refer to.
func RegisterResolver(name string, resolver subsystem.ResolverFunc) {
	defaultRegistry.RegisterResolver(name, resolver)
}

// Register adds a module under a logical name.
// Registering a name twice is allowed here and reported as ambiguous when the name is loaded.
func (reg *Registry) Register(name string, module subsystem.Module) {
	reg.register(name, module, 2)
}

// RegisterRoute adds a route below dir. Route names use "/" to separate segments.
func (reg *Registry) RegisterRoute(dir, name string, handle subsystem.HandleFunc, resolvers ...subsystem.ResolverFunc) {
	reg.registerRoute(dir, name, handle, resolvers, 2)
}

// RegisterHandle adds a named handle.
func (reg *Registry) RegisterHandle(name string, handle subsystem.HandleFunc) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.handles[name] = handle
}

// RegisterResolver adds a named resolver.
func (reg *Registry) RegisterResolver(name string, resolver subsystem.ResolverFunc) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.resolvers[name] = resolver
}

// Handle returns the named handle.
func (reg *Registry) Handle(name string) (subsystem.HandleFunc, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	handle, ok := reg.handles[name]

	return handle, ok
}

// Resolver returns the named resolver.
func (reg *Registry) Resolver(name string) (subsystem.ResolverFunc, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	resolver, ok := reg.resolvers[name]

	return resolver, ok
}

// Modules returns every module registered under name.
func (reg *Registry) Modules(name string) []subsystem.Module {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return append([]subsystem.Module(nil), reg.modules[name]...)
}

// Routes returns the routes registered below dir, sorted by name.
func (reg *Registry) Routes(dir string) []subsystem.Route {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	routes := append([]subsystem.Route(nil), reg.routes[normalizeDir(dir)]...)
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Name < routes[j].Name
	})

	return routes
}

func (reg *Registry) register(name string, module subsystem.Module, skip int) {
	module.Name = name
	if module.File == "" {
		module.File = callerFile(skip + 1)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.modules[name] = append(reg.modules[name], module)
}

func (reg *Registry) registerRoute(dir, name string, handle subsystem.HandleFunc, resolvers []subsystem.ResolverFunc, skip int) {
	dir = normalizeDir(dir)
	route := subsystem.Route{
		Name:      strings.Trim(name, "/"),
		Dir:       dir,
		File:      callerFile(skip + 1),
		Handle:    handle,
		Resolvers: resolvers,
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.routes[dir] = append(reg.routes[dir], route)
}

// callerFile returns the base name of the file skip frames above callerFile.
func callerFile(skip int) string {
	_, file, _, ok := runtime.Caller(skip)
	if !ok {
		return "registry"
	}

	return filepath.Base(file)
}

// normalizeDir maps "./routes", "routes/" and "routes" to the same key.
func normalizeDir(dir string) string {
	return path.Clean(filepath.ToSlash(dir))
}
