package engine

import (
	"context"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// ModuleSource provides modules and routes to the Loader.
type ModuleSource interface {
	// FindModules returns every candidate for hint. Hint is a logical name or a file path.
	FindModules(ctx context.Context, hint string) ([]subsystem.Module, error)

	// FindRoutes returns the routes below dir.
	FindRoutes(ctx context.Context, dir string) ([]subsystem.Route, error)
}

// RegistrySource serves modules and routes from explicit registrations.
type RegistrySource struct {
	registry *Registry
}

// NewRegistrySource creates a source over registry.
func NewRegistrySource(registry *Registry) *RegistrySource {
	return &RegistrySource{registry: registry}
}

// FindModules returns the modules registered under hint. File path hints never match.
func (s *RegistrySource) FindModules(_ context.Context, hint string) ([]subsystem.Module, error) {
	if isPathHint(hint) {
		return nil, nil
	}

	return s.registry.Modules(hint), nil
}

// FindRoutes returns the routes registered below dir.
func (s *RegistrySource) FindRoutes(_ context.Context, dir string) ([]subsystem.Route, error) {
	return s.registry.Routes(dir), nil
}
