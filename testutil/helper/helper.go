// Package helper provides fixtures and observability spies for testing subsystem applications.
package helper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// GivenUniqueID returns a fresh call ID.
func GivenUniqueID(t testing.TB) string {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id.String()
}

// GivenFile writes content to rel below dir, creating parent directories.
func GivenFile(t testing.TB, dir, rel, content string) string {
	file := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755), "error in arranging test data")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600), "error in arranging test data")

	return file
}

// GivenRuntime creates a Runtime isolated from the package-level registry and the process environment.
// Modules come from registry first, then from files below cwd.
func GivenRuntime(t testing.TB, registry *engine.Registry, cwd string, opts ...engine.Option) *engine.Runtime {
	base := []engine.Option{
		engine.WithRegistry(registry),
		engine.WithSources(engine.NewRegistrySource(registry), engine.NewDirSource(cwd, registry)),
		engine.WithEnviron(nil),
	}

	rt, err := engine.New(append(base, opts...)...)
	require.NoError(t, err, "error in arranging test data")

	return rt
}

// GivenServer bootstraps a server from registry and the files below cwd.
func GivenServer(t testing.TB, registry *engine.Registry, cwd string, presets []string, opts ...engine.Option) *engine.Server {
	rt := GivenRuntime(t, registry, cwd, opts...)

	server, err := rt.Bootstrap(context.Background(), engine.ServerConfig{Cwd: cwd, Presets: presets, Name: "test"})
	require.NoError(t, err, "error in arranging test data")

	return server
}

// Respond returns a handle that always produces body with code.
func Respond(code int, body any) subsystem.HandleFunc {
	return func(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
		return subsystem.Result{Output: &subsystem.Output{Body: body, Code: code}}, nil
	}
}

// Fail returns a handle that always fails with err.
func Fail(err error) subsystem.HandleFunc {
	return func(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
		return subsystem.Result{}, err
	}
}

// MustCall calls route on router and fails the test when the route is unknown.
func MustCall(t testing.TB, router subsystem.Router, route string, input subsystem.Input) *subsystem.CallContext {
	call, err := router.Call(context.Background(), route, input, nil)
	require.NoError(t, err)

	return call
}
