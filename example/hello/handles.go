package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

var errBoom = errors.New("boom")

func init() {
	engine.RegisterRoute("routes", "hello", hello)
	engine.RegisterRoute("routes", "error", fail)
	engine.RegisterRoute("routes", "math/plus", plus)
	engine.RegisterHandle("inspect", inspect)
	engine.Register("handler", subsystem.Module{Handler: logCalls})
}

func hello(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
	return subsystem.Result{Output: &subsystem.Output{Body: "world"}}, nil
}

func fail(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
	return subsystem.Result{}, errBoom
}

func plus(_ context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
	body, _ := call.Input.Body.(map[string]any)

	left, leftOK := body["left"].(float64)
	right, rightOK := body["right"].(float64)
	if !leftOK || !rightOK {
		return subsystem.Result{}, subsystem.BadRequest(subsystem.Values{"error": "left and right must be numbers"})
	}

	return subsystem.Result{Output: &subsystem.Output{Body: left + right}}, nil
}

// inspect is referenced by routes/inspect.yaml.
func inspect(_ context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
	return subsystem.Result{Output: &subsystem.Output{Body: subsystem.Values{
		"config":  call.Config,
		"context": call.Context,
	}}}, nil
}

// logCalls resolves every route to its own handle wrapped with a log line per call.
func logCalls(_ context.Context, _ *subsystem.State, route subsystem.Route) (subsystem.Handler, error) {
	handle := route.Handle
	if handle == nil {
		return subsystem.Handler{}, subsystem.ErrMissingHandle
	}

	return subsystem.Handler{
		Resolvers: route.Resolvers,
		Handle: func(ctx context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
			start := time.Now()
			result, err := handle(ctx, call)

			slog.InfoContext(ctx, "route handled",
				"route", call.Route,
				"call_id", call.ID,
				"duration_ms", float64(time.Since(start).Microseconds())/1000,
				"failed", err != nil)

			return result, err
		},
	}, nil
}
