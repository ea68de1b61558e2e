package repl_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/presets/repl"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
	"github.com/AntonStoeckl/subsystem-go/testutil/helper"
)

func givenServer(t *testing.T) *engine.Server {
	t.Helper()

	registry := engine.NewRegistry()
	registry.RegisterRoute("routes", "hello", helper.Respond(200, "world"))
	registry.RegisterRoute("routes", "echo", func(_ context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
		return subsystem.Result{Output: &subsystem.Output{Body: call.Input.Body}}, nil
	})

	return helper.GivenServer(t, registry, t.TempDir(), nil)
}

func run(t *testing.T, input string) string {
	t.Helper()

	server := givenServer(t)
	out := &bytes.Buffer{}

	err := repl.NewShell(strings.NewReader(input), out).Run(context.Background(), server.State(), server.Router())
	require.NoError(t, err)

	return out.String()
}

func Test_Shell_CallsRoutes(t *testing.T) {
	// act
	out := run(t, "hello\necho {\"a\": [1, 2]}\n")

	// assert
	assert.Contains(t, out, `"body": "world"`)
	assert.Contains(t, out, `"code": 200`)
	assert.Contains(t, out, `"a": [`)
}

func Test_Shell_ReportsBadInput(t *testing.T) {
	// act
	out := run(t, "echo {oops\nmissing\n.what\n")

	// assert
	assert.Contains(t, out, "invalid JSON body")
	assert.Contains(t, out, `route not found: "missing"`)
	assert.Contains(t, out, `unknown command ".what", try .help`)
}

func Test_Shell_Commands(t *testing.T) {
	// act
	out := run(t, ".help\n.routes\n.inspect\n.health\n")

	// assert
	assert.Contains(t, out, ".exit")
	assert.Contains(t, out, "echo\nhello\n")
	assert.Contains(t, out, `"name": "test"`)
	assert.Contains(t, out, `"OK"`)
}

func Test_Shell_ExitStopsBeforeRemainingInput(t *testing.T) {
	// act
	out := run(t, ".exit\nhello\n")

	// assert
	assert.NotContains(t, out, "world")
}

func Test_Shell_StopsWhenContextIsCanceled(t *testing.T) {
	// arrange
	server := givenServer(t)
	reader, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// act
	go func() {
		done <- repl.NewShell(reader, io.Discard).Run(ctx, server.State(), server.Router())
	}()
	cancel()

	// assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not stop")
	}
}

func Test_Module_IsRegisteredAsPreset(t *testing.T) {
	// act
	modules := engine.DefaultRegistry().Modules(repl.Name)

	// assert
	require.Len(t, modules, 1)
	assert.NoError(t, engine.ShapePreset.Validate(modules[0]))
}
