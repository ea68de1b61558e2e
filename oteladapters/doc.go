// Package oteladapters connects the subsystem observability interfaces to OpenTelemetry.
//
// TracingCollector, MetricsCollector and the two loggers are plain adapters over the OpenTelemetry
// API. NewProviders builds OTLP exporting SDK providers and installs them globally.
package oteladapters
