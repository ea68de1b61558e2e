// Command subsystem runs an application from its route and module files.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AntonStoeckl/subsystem-go/cli"

	_ "github.com/AntonStoeckl/subsystem-go/presets/httpserver"
	_ "github.com/AntonStoeckl/subsystem-go/presets/postgres"
	_ "github.com/AntonStoeckl/subsystem-go/presets/redisbus"
	_ "github.com/AntonStoeckl/subsystem-go/presets/repl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}
