// Package cli implements the subsystem command: flag parsing, logging and telemetry setup, and the
// hand-off to engine.StartServer.
//
//	subsystem [flags]
//
//	-d, --dir            route directory, repeatable (default ./routes)
//	    --cwd            application directory (default .)
//	-p, --preset         preset module, repeatable
//	-e, --execute        run one route, print its output and exit
//	-b, --body           JSON body for --execute
//	-H, --headers        JSON object of headers for --execute
//	    --name           application name (default: base name of --cwd)
//	    --config-prefix  environment variable prefix (default subsystem)
//	    --env            env file (default <cwd>/.env)
//
// LOG_LEVEL (debug, info, warn, error or silent) selects the stderr log level. When
// OTEL_EXPORTER_OTLP_ENDPOINT is set, traces, metrics and logs are exported over OTLP gRPC;
// otherwise metrics go to the default Prometheus registry.
package cli
