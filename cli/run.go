package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/oteladapters"
	"github.com/AntonStoeckl/subsystem-go/promadapters"
)

const (
	instrumentationName = "subsystem"
	shutdownTimeout     = 5 * time.Second

	exitOK    = 0
	exitError = 1
	exitUsage = 2

	logMsgTelemetryShutdownFailed = "telemetry shutdown failed"
	logMsgServerFailed            = "server failed"
	logAttrError                  = "error"
)

// Run executes the command with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := ParseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	config, err := flags.ServerConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	config.Stdout = stdout

	settings, err := LoadSettings()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	handler, err := settings.LogHandler(stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	opts, shutdown, err := observability(ctx, settings, handler, serviceName(config.Name, config.Cwd))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	defer shutdown()

	if err = engine.StartServer(ctx, config, opts...); err != nil {
		slog.ErrorContext(ctx, logMsgServerFailed, logAttrError, err)
		fmt.Fprintln(stderr, err)

		return exitError
	}

	return exitOK
}

// observability builds the engine options for logging, metrics and tracing and installs the
// logger as the slog default so presets log through it too.
func observability(ctx context.Context, settings Settings, handler slog.Handler, service string) ([]engine.Option, func(), error) {
	if !settings.TelemetryEnabled() {
		logger := slog.New(handler)
		slog.SetDefault(logger)

		return []engine.Option{
			engine.WithContextualLogger(logger),
			engine.WithMetrics(promadapters.NewMetricsCollector(prometheus.DefaultRegisterer)),
		}, func() {}, nil
	}

	providers, err := oteladapters.NewProviders(ctx, oteladapters.ProviderConfig{
		ServiceName:    service,
		ServiceVersion: settings.ServiceVersion,
		Endpoint:       settings.OTLPEndpoint,
		Insecure:       settings.OTLPInsecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}

	logger := oteladapters.NewFanoutLogger(instrumentationName, handler)
	slog.SetDefault(logger)

	tracing, metrics := providers.Collectors(instrumentationName)

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.WarnContext(shutdownCtx, logMsgTelemetryShutdownFailed, logAttrError, err)
		}
	}

	return []engine.Option{
		engine.WithContextualLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithTracing(tracing),
	}, shutdown, nil
}

func serviceName(name, cwd string) string {
	if name != "" {
		return name
	}

	abs, err := filepath.Abs(cwd)
	if err != nil {
		return instrumentationName
	}

	return filepath.Base(abs)
}
