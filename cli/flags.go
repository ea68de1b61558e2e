package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

const defaultRouteDir = "./routes"

var (
	// ErrInvalidBody is returned when --body is not valid JSON.
	ErrInvalidBody = errors.New("--body must be valid JSON")

	// ErrInvalidHeaders is returned when --headers is not a JSON object of strings.
	ErrInvalidHeaders = errors.New("--headers must be a JSON object of strings")

	// ErrUnexpectedArguments is returned for positional arguments.
	ErrUnexpectedArguments = errors.New("unexpected arguments")

	flagJSON = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Flags holds the parsed command line.
type Flags struct {
	Dirs         []string
	Cwd          string
	Presets      []string
	Execute      string
	Body         string
	Headers      string
	Name         string
	ConfigPrefix string
	EnvFile      string
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// ParseFlags parses args. Usage goes to output; -h returns flag.ErrHelp.
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	var (
		flags   Flags
		dirs    stringList
		presets stringList
	)

	fs := flag.NewFlagSet("subsystem", flag.ContinueOnError)
	fs.SetOutput(output)

	for _, name := range []string{"d", "dir"} {
		fs.Var(&dirs, name, "route directory, repeatable (default "+defaultRouteDir+")")
	}

	for _, name := range []string{"p", "preset"} {
		fs.Var(&presets, name, "preset module, repeatable")
	}

	fs.StringVar(&flags.Cwd, "cwd", ".", "application directory")
	fs.StringVar(&flags.Execute, "e", "", "run one route, print its output and exit")
	fs.StringVar(&flags.Execute, "execute", "", "run one route, print its output and exit")
	fs.StringVar(&flags.Body, "b", "", "JSON body for --execute")
	fs.StringVar(&flags.Body, "body", "", "JSON body for --execute")
	fs.StringVar(&flags.Headers, "H", "", "JSON object of headers for --execute")
	fs.StringVar(&flags.Headers, "headers", "", "JSON object of headers for --execute")
	fs.StringVar(&flags.Name, "name", "", "application name (default: base name of --cwd)")
	fs.StringVar(&flags.ConfigPrefix, "config-prefix", engine.DefaultConfigPrefix, "environment variable prefix")
	fs.StringVar(&flags.EnvFile, "env", "", "env file (default <cwd>/"+engine.DefaultEnvFile+")")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if fs.NArg() > 0 {
		return Flags{}, fmt.Errorf("%w: %s", ErrUnexpectedArguments, strings.Join(fs.Args(), " "))
	}

	flags.Dirs = dirs
	if len(flags.Dirs) == 0 {
		flags.Dirs = []string{defaultRouteDir}
	}

	flags.Presets = presets

	return flags, nil
}

// ServerConfig maps the flags to the engine's bootstrap configuration.
func (f Flags) ServerConfig() (engine.ServerConfig, error) {
	input, err := f.input()
	if err != nil {
		return engine.ServerConfig{}, err
	}

	return engine.ServerConfig{
		Cwd:          f.Cwd,
		RouteDirs:    f.Dirs,
		Presets:      f.Presets,
		Name:         f.Name,
		ConfigPrefix: f.ConfigPrefix,
		EnvFile:      f.EnvFile,
		Execute:      f.Execute,
		ExecuteInput: input,
	}, nil
}

func (f Flags) input() (subsystem.Input, error) {
	var input subsystem.Input

	if f.Body != "" {
		if err := flagJSON.UnmarshalFromString(f.Body, &input.Body); err != nil {
			return subsystem.Input{}, fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
	}

	if f.Headers != "" {
		if err := flagJSON.UnmarshalFromString(f.Headers, &input.Headers); err != nil {
			return subsystem.Input{}, fmt.Errorf("%w: %w", ErrInvalidHeaders, err)
		}
	}

	return input, nil
}
