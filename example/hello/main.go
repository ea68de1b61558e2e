// Command hello is a small subsystem application: a few Go routes registered in handles.go plus
// declarative modules and routes in this directory.
//
//	go run ./example/hello --cwd example/hello -e hello
//	go run ./example/hello --cwd example/hello -e math/plus -b '{"left": 1, "right": 2}'
//	go run ./example/hello --cwd example/hello -p http
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AntonStoeckl/subsystem-go/cli"

	_ "github.com/AntonStoeckl/subsystem-go/presets/httpserver"
	_ "github.com/AntonStoeckl/subsystem-go/presets/repl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}
