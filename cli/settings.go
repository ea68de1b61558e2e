package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joeshaw/envdecode"
)

const levelSilent = "silent"

// Settings are read from the process environment.
type Settings struct {
	LogLevel string `env:"LOG_LEVEL,default=silent"`

	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure   bool   `env:"OTEL_EXPORTER_OTLP_INSECURE,default=true"`
	ServiceVersion string `env:"SUBSYSTEM_VERSION,default=dev"`
}

// LoadSettings decodes Settings from the environment.
func LoadSettings() (Settings, error) {
	var settings Settings
	if err := envdecode.Decode(&settings); err != nil {
		return Settings{}, fmt.Errorf("environment: %w", err)
	}

	return settings, nil
}

// LogHandler returns a JSON handler on w at the configured level, or a discarding handler for silent.
func (s Settings) LogHandler(w io.Writer) (slog.Handler, error) {
	if strings.EqualFold(s.LogLevel, levelSilent) {
		return slog.DiscardHandler, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
}

// TelemetryEnabled reports whether OTLP export is configured.
func (s Settings) TelemetryEnabled() bool {
	return s.OTLPEndpoint != ""
}
