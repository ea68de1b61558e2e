package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Shape is the role a module is loaded for. It decides which stages the module must export.
type Shape string

// Supported shapes.
const (
	ShapeConfig      Shape = "config"
	ShapeContext     Shape = "context"
	ShapeHandler     Shape = "handler"
	ShapeAdaptor     Shape = "adaptor"
	ShapeError       Shape = "error"
	ShapeHealthCheck Shape = "healthcheck"
	ShapePreset      Shape = "preset"
)

var (
	errMissingConfig      = errors.New("config is required")
	errMissingContext     = errors.New("context or requestContext is required")
	errMissingHandler     = errors.New("handler is required")
	errMissingAdaptor     = errors.New("adaptor is required")
	errMissingError       = errors.New("error is required")
	errMissingHealthCheck = errors.New("healthcheck is required")
	errEmptyPreset        = errors.New("a preset must export at least one stage")
	errUnknownShape       = errors.New("unknown shape")
)

// Validate checks that m exports what the shape requires.
func (s Shape) Validate(m subsystem.Module) error {
	var err error

	switch s {
	case ShapeConfig:
		if m.Config == nil {
			err = errMissingConfig
		}
	case ShapeContext:
		if m.Context == nil && m.RequestContext == nil {
			err = errMissingContext
		}
	case ShapeHandler:
		if m.Handler == nil {
			err = errMissingHandler
		}
	case ShapeAdaptor:
		if m.Adaptor == nil {
			err = errMissingAdaptor
		}
	case ShapeError:
		if m.Error == nil {
			err = errMissingError
		}
	case ShapeHealthCheck:
		if m.HealthCheck == nil {
			err = errMissingHealthCheck
		}
	case ShapePreset:
		if m.IsEmpty() {
			err = errEmptyPreset
		}
	default:
		err = fmt.Errorf("%w %q", errUnknownShape, string(s))
	}

	if err != nil {
		return &subsystem.ShapeValidationError{Location: m.File, Shape: string(s), Err: err}
	}

	return nil
}

// Loader resolves module hints and route directories across its sources.
// It is used during bootstrap only.
type Loader struct {
	sources []ModuleSource
}

// NewLoader creates a loader that searches sources in order.
func NewLoader(sources ...ModuleSource) *Loader {
	return &Loader{sources: sources}
}

// Load resolves hint to exactly one module matching shape.
//
// It returns a DuplicateModuleError when more than one candidate exists, a MissingModuleError when
// none exists and required is set (nil, nil when not required) and a ShapeValidationError when the
// candidate does not export what shape requires.
func (l *Loader) Load(ctx context.Context, hint string, shape Shape, required bool) (*subsystem.Module, error) {
	var candidates []subsystem.Module

	for _, source := range l.sources {
		found, err := source.FindModules(ctx, hint)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, found...)
	}

	switch len(candidates) {
	case 0:
		if required {
			return nil, &subsystem.MissingModuleError{Hint: hint, Shape: string(shape)}
		}

		return nil, nil

	case 1:
		// exactly one candidate

	default:
		files := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			files = append(files, candidate.File)
		}

		return nil, &subsystem.DuplicateModuleError{Hint: hint, Candidates: files}
	}

	module := candidates[0]
	if module.Name == "" {
		module.Name = hint
	}

	if err := shape.Validate(module); err != nil {
		return nil, err
	}

	return &module, nil
}

// LoadRoutes collects the routes of every dir from every source.
// Name clashes are left to the router, which rejects them.
func (l *Loader) LoadRoutes(ctx context.Context, dirs []string) ([]subsystem.Route, error) {
	var routes []subsystem.Route

	for _, dir := range dirs {
		for _, source := range l.sources {
			found, err := source.FindRoutes(ctx, dir)
			if err != nil {
				return nil, fmt.Errorf("loading routes from %s: %w", dir, err)
			}

			routes = append(routes, found...)
		}
	}

	return routes, nil
}

// isPathHint reports whether hint names a file rather than a logical module.
func isPathHint(hint string) bool {
	if strings.ContainsAny(hint, `/\`) {
		return true
	}

	_, known := decoders[strings.ToLower(filepath.Ext(hint))]

	return known
}
