package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// defaultFile tags the built-in stages.
const defaultFile = "subsystem"

// components are the directory-local modules folded in after the presets, in this order.
var components = []struct {
	name  string
	shape Shape
}{
	{name: "config", shape: ShapeConfig},
	{name: "context", shape: ShapeContext},
	{name: "handler", shape: ShapeHandler},
	{name: "adaptor", shape: ShapeAdaptor},
	{name: "error", shape: ShapeError},
	{name: "healthcheck", shape: ShapeHealthCheck},
}

// Assemble folds the presets, then the directory components, into one Application.
//
// Presets are required and folded left to right. Components are optional. List stages
// concatenate in fold order and a later handler resolution replaces an earlier one.
// Omitted stages get the built-in identity handler resolution and the default error handler.
func (r *Runtime) Assemble(ctx context.Context, loader *Loader, presets []string) (subsystem.Application, error) {
	var app subsystem.Application

	for _, preset := range presets {
		module, err := loader.Load(ctx, preset, ShapePreset, true)
		if err != nil {
			return subsystem.Application{}, err
		}

		fold(&app, *module)
	}

	for _, component := range components {
		module, err := loader.Load(ctx, component.name, component.shape, false)
		if err != nil {
			return subsystem.Application{}, err
		}

		if module != nil {
			fold(&app, *module)
		}
	}

	if app.Handler == nil {
		app.Handler = subsystem.NewStage(subsystem.Meta{File: defaultFile, Name: "handler"}, identityHandler)
	}

	if len(app.Error) == 0 {
		app.Error = append(app.Error, subsystem.NewStage(subsystem.Meta{File: defaultFile, Name: "error"}, r.defaultError))
	}

	r.logInfo(ctx, logMsgAssembled, logAttrPresets, presets)

	return app, nil
}

// fold appends every stage m exports to app, tagged with the module's file and stage name.
func fold(app *subsystem.Application, m subsystem.Module) {
	meta := func(name string) subsystem.Meta {
		return subsystem.Meta{File: m.File, Name: name}
	}

	if m.Config != nil {
		app.Config = append(app.Config, subsystem.NewStage[*subsystem.State, subsystem.Values](meta("config"), m.Config))
	}

	if m.Context != nil {
		app.Context = append(app.Context, subsystem.NewStage[*subsystem.State, subsystem.Values](meta("context"), m.Context))
	}

	if m.RequestContext != nil {
		app.RequestContext = append(app.RequestContext, subsystem.NewStage[*subsystem.CallContext, subsystem.Values](meta("requestContext"), m.RequestContext))
	}

	if m.Handler != nil {
		handler := m.Handler
		app.Handler = subsystem.NewStage(meta("handler"),
			func(ctx context.Context, in subsystem.Resolution) (subsystem.Handler, error) {
				return handler(ctx, in.State, in.Route)
			})
	}

	if m.Error != nil {
		errorFn := m.Error
		app.Error = append(app.Error, subsystem.NewStage(meta("error"),
			func(ctx context.Context, in subsystem.Failure) (*subsystem.Output, error) {
				return errorFn(ctx, in.Err, in.Call)
			}))
	}

	if m.HealthCheck != nil {
		healthCheck := m.HealthCheck
		app.HealthCheck = append(app.HealthCheck, subsystem.NewStage(meta("healthcheck"),
			func(ctx context.Context, state *subsystem.State) (subsystem.Done, error) {
				return subsystem.Done{}, healthCheck(ctx, state)
			}))
	}

	if m.Adaptor != nil {
		adaptor := m.Adaptor
		app.Adaptor = append(app.Adaptor, subsystem.NewStage(meta("adaptor"),
			func(ctx context.Context, in subsystem.Attachment) (subsystem.Done, error) {
				return subsystem.Done{}, adaptor(ctx, in.State, in.Router)
			}))
	}
}

// identityHandler uses the route's own handle and resolvers.
func identityHandler(_ context.Context, in subsystem.Resolution) (subsystem.Handler, error) {
	if in.Route.Handle == nil {
		return subsystem.Handler{}, &subsystem.ShapeValidationError{
			Location: in.Route.File,
			Shape:    "route",
			Err:      subsystem.ErrMissingHandle,
		}
	}

	return subsystem.Handler{
		Name:      in.Route.Name,
		Handle:    in.Route.Handle,
		Resolvers: in.Route.Resolvers,
	}, nil
}

// defaultError maps structured errors to their own output and everything else to a 500.
func (r *Runtime) defaultError(ctx context.Context, in subsystem.Failure) (*subsystem.Output, error) {
	return r.failureOutput(ctx, in.Err, in.Call), nil
}

func (r *Runtime) failureOutput(ctx context.Context, err error, call *subsystem.CallContext) *subsystem.Output {
	var statusErr *subsystem.StatusError
	if errors.As(err, &statusErr) {
		return &subsystem.Output{
			Headers: statusErr.Headers,
			Body:    statusErr.Body,
			Code:    statusErr.Code,
		}
	}

	r.logError(ctx, logMsgUnstructuredError, err, logAttrRoute, call.Route, logAttrCallID, call.ID)

	return &subsystem.Output{
		Code: http.StatusInternalServerError,
		Body: subsystem.Values{"error": err.Error()},
	}
}
