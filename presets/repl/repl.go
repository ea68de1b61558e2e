// Package repl is the "repl" preset: an adaptor that calls routes from commands typed on stdin.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Name is the preset name used with --preset.
const Name = "repl"

const (
	prompt = "> "
	help   = `<route> [json]  call a route with an optional JSON body
.routes         list routes
.inspect        print config, context and routes
.health         run the health checks
.help           print this help
.exit           stop the shell
`
)

var outputJSON = jsoniter.Config{EscapeHTML: false, SortMapKeys: true}.Froze()

func init() {
	engine.Register(Name, Module())
}

// Module returns the preset for explicit composition. It reads stdin and writes stdout.
func Module() subsystem.Module {
	return subsystem.Module{
		Name:    Name,
		File:    "presets/repl",
		Adaptor: NewShell(os.Stdin, os.Stdout).Run,
	}
}

// Shell reads one command per line from in and writes results to out.
type Shell struct {
	in  io.Reader
	out io.Writer
}

// NewShell returns a Shell over in and out.
func NewShell(in io.Reader, out io.Writer) *Shell {
	return &Shell{in: in, out: out}
}

// Run serves commands until .exit, the end of the input, or ctx is canceled.
func (s *Shell) Run(ctx context.Context, state *subsystem.State, router subsystem.Router) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(s.out, prompt)

		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}

			if s.exec(ctx, strings.TrimSpace(line), state, router) {
				return nil
			}
		}
	}
}

// exec runs one command and reports whether the shell should stop.
func (s *Shell) exec(ctx context.Context, line string, state *subsystem.State, router subsystem.Router) bool {
	switch line {
	case "":
	case ".exit":
		return true
	case ".help":
		fmt.Fprint(s.out, help)
	case ".routes":
		for _, route := range router.Routes() {
			fmt.Fprintln(s.out, route)
		}
	case ".inspect":
		s.print(state.Inspect())
	case ".health":
		s.print(router.Healthcheck(ctx))
	default:
		if strings.HasPrefix(line, ".") {
			fmt.Fprintf(s.out, "unknown command %q, try .help\n", line)
			return false
		}

		s.call(ctx, line, router)
	}

	return false
}

func (s *Shell) call(ctx context.Context, line string, router subsystem.Router) {
	route, rawBody, _ := strings.Cut(line, " ")

	var input subsystem.Input
	if rawBody = strings.TrimSpace(rawBody); rawBody != "" {
		if err := outputJSON.UnmarshalFromString(rawBody, &input.Body); err != nil {
			fmt.Fprintf(s.out, "invalid JSON body: %v\n", err)
			return
		}
	}

	call, err := router.Call(ctx, route, input, nil)
	if err != nil {
		fmt.Fprintln(s.out, err)
		return
	}

	s.print(call.Output)
}

func (s *Shell) print(value any) {
	encoded, err := outputJSON.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "cannot encode output: %v\n", err)
		return
	}

	fmt.Fprintln(s.out, string(encoded))
}
