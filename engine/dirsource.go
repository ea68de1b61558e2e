package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

var errUnknownReference = errors.New("unknown reference")

type decodeFunc func(data []byte, out any) error

var strictJSON = jsoniter.Config{
	EscapeHTML:            false,
	DisallowUnknownFields: true,
	UseNumber:             false,
}.Froze()

var decoders = map[string]decodeFunc{
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": decodeJSON,
}

// fileExtensions is the search order for bare module names.
var fileExtensions = []string{".json", ".yaml", ".yml"}

func decodeYAML(data []byte, out any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func decodeJSON(data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	return strictJSON.Unmarshal(data, out)
}

// moduleFile is the declarative form of a module: static values for the value-producing stages.
type moduleFile struct {
	Config         subsystem.Values `yaml:"config" json:"config"`
	Context        subsystem.Values `yaml:"context" json:"context"`
	RequestContext subsystem.Values `yaml:"requestContext" json:"requestContext"`
}

// routeFile is the declarative form of a route.
type routeFile struct {
	Handle    string           `yaml:"handle" json:"handle" validate:"required_without=Output,excluded_with=Output"`
	Resolvers []string         `yaml:"resolvers" json:"resolvers"`
	Output    *staticOutput    `yaml:"output" json:"output"`
	Extras    subsystem.Values `yaml:"extras" json:"extras"`
}

type staticOutput struct {
	Headers map[string]string `yaml:"headers" json:"headers"`
	Body    any               `yaml:"body" json:"body"`
	Code    int               `yaml:"code" json:"code" validate:"omitempty,gte=100,lte=599"`
}

// DirSource discovers declarative module and route files below a root directory.
// Handles and resolvers named by route files are looked up in the registry.
type DirSource struct {
	root     string
	registry *Registry
	validate *validator.Validate
}

// NewDirSource creates a source rooted at root.
func NewDirSource(root string, registry *Registry) *DirSource {
	return &DirSource{
		root:     root,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// FindModules returns the module file for a path hint, or every "<hint>.<ext>" file in the root.
func (s *DirSource) FindModules(_ context.Context, hint string) ([]subsystem.Module, error) {
	var files []string

	if isPathHint(hint) {
		file := hint
		if !filepath.IsAbs(file) {
			file = filepath.Join(s.root, file)
		}

		if _, known := decoders[strings.ToLower(filepath.Ext(file))]; known && fileExists(file) {
			files = append(files, file)
		}
	} else {
		for _, ext := range fileExtensions {
			file := filepath.Join(s.root, hint+ext)
			if fileExists(file) {
				files = append(files, file)
			}
		}
	}

	modules := make([]subsystem.Module, 0, len(files))
	for _, file := range files {
		module, err := s.readModule(file)
		if err != nil {
			return nil, err
		}

		module.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		modules = append(modules, module)
	}

	return modules, nil
}

// FindRoutes walks dir and returns one route per declarative route file.
// Files of other types, and files starting with "." or "_", are ignored.
func (s *DirSource) FindRoutes(_ context.Context, dir string) ([]subsystem.Route, error) {
	base := dir
	if !filepath.IsAbs(base) {
		base = filepath.Join(s.root, dir)
	}

	if !fileExists(base) {
		return nil, nil
	}

	var routes []subsystem.Route

	err := filepath.WalkDir(base, func(file string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			return nil
		}

		if _, known := decoders[strings.ToLower(filepath.Ext(name))]; !known {
			return nil
		}

		rel, err := filepath.Rel(base, file)
		if err != nil {
			return err
		}

		route, err := s.readRoute(file)
		if err != nil {
			return err
		}

		route.Name = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
		route.Dir = normalizeDir(dir)
		routes = append(routes, route)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Name < routes[j].Name
	})

	return routes, nil
}

func (s *DirSource) readModule(file string) (subsystem.Module, error) {
	var declared moduleFile
	if err := s.decodeFile(file, &declared); err != nil {
		return subsystem.Module{}, &subsystem.ShapeValidationError{Location: s.relative(file), Shape: "module", Err: err}
	}

	module := subsystem.Module{File: s.relative(file)}

	if declared.Config != nil {
		module.Config = staticValues[*subsystem.State](declared.Config)
	}

	if declared.Context != nil {
		module.Context = staticValues[*subsystem.State](declared.Context)
	}

	if declared.RequestContext != nil {
		module.RequestContext = staticValues[*subsystem.CallContext](declared.RequestContext)
	}

	return module, nil
}

func (s *DirSource) readRoute(file string) (subsystem.Route, error) {
	location := s.relative(file)
	invalid := func(err error) (subsystem.Route, error) {
		return subsystem.Route{}, &subsystem.ShapeValidationError{Location: location, Shape: "route", Err: err}
	}

	var declared routeFile
	if err := s.decodeFile(file, &declared); err != nil {
		return invalid(err)
	}

	if err := s.validate.Struct(declared); err != nil {
		return invalid(err)
	}

	route := subsystem.Route{File: location, Extras: declared.Extras}

	if declared.Handle != "" {
		handle, ok := s.registry.Handle(declared.Handle)
		if !ok {
			return invalid(fmt.Errorf("%w: handle %q", errUnknownReference, declared.Handle))
		}

		route.Handle = handle
	} else {
		route.Handle = staticHandle(declared.Output)
	}

	for _, name := range declared.Resolvers {
		resolver, ok := s.registry.Resolver(name)
		if !ok {
			return invalid(fmt.Errorf("%w: resolver %q", errUnknownReference, name))
		}

		route.Resolvers = append(route.Resolvers, resolver)
	}

	return route, nil
}

func (s *DirSource) decodeFile(file string, out any) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	return decoders[strings.ToLower(filepath.Ext(file))](data, out)
}

func (s *DirSource) relative(file string) string {
	rel, err := filepath.Rel(s.root, file)
	if err != nil {
		return file
	}

	return filepath.ToSlash(rel)
}

// staticValues returns a stage function that yields a fresh copy of values on every call.
func staticValues[I any](values subsystem.Values) func(context.Context, I) (subsystem.Values, error) {
	return func(context.Context, I) (subsystem.Values, error) {
		return subsystem.DeepCopy(values), nil
	}
}

func staticHandle(output *staticOutput) subsystem.HandleFunc {
	return func(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
		return subsystem.Result{Output: &subsystem.Output{
			Headers: output.Headers,
			Body:    output.Body,
			Code:    output.Code,
		}}, nil
	}
}

func fileExists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}
