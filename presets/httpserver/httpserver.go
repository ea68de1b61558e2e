// Package httpserver is the "http" preset: an adaptor that serves every route over HTTP.
//
// A request to /<route> calls the route with the request headers and a body made of the query
// parameters merged with the JSON request body. The output headers, code and JSON body become the
// response. /-/health reports the health checks and /-/metrics serves Prometheus metrics when enabled.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/presets/presetkit"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Name is the preset name used with --preset.
const Name = "http"

const (
	healthPath  = "/-/health"
	metricsPath = "/-/metrics"
	metaID      = "id"
)

var errInvalidBody = errors.New("request body is not valid JSON")

// Config is read from the "http" config section.
type Config struct {
	Addr string `json:"addr" validate:"required"`

	// RateLimit is the allowed requests per second across all routes. Zero disables limiting.
	RateLimit float64 `json:"rateLimit" validate:"gte=0"`
	Burst     int     `json:"burst" validate:"gte=0"`

	// Metrics mounts the Prometheus handler at /-/metrics.
	Metrics bool `json:"metrics"`

	// ShutdownTimeout is the graceful shutdown budget in seconds.
	ShutdownTimeout int `json:"shutdownTimeout" validate:"gte=0"`

	// BodyLimit caps request bodies in bytes. Larger bodies are answered with 413.
	BodyLimit int64 `json:"bodyLimit" validate:"gte=0"`
}

// DefaultConfig is applied to every zero field of the "http" section.
var DefaultConfig = Config{
	Addr:            ":3000",
	Burst:           1,
	ShutdownTimeout: 5,
	BodyLimit:       1 << 20,
}

func init() {
	engine.Register(Name, Module())
}

// Module returns the preset for explicit composition.
func Module() subsystem.Module {
	return subsystem.Module{
		Name:    Name,
		File:    "presets/httpserver",
		Adaptor: Serve,
	}
}

// Serve listens on the configured address until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, state *subsystem.State, router subsystem.Router) error {
	var config Config
	if err := presetkit.DecodeConfig(state, Name, &config, DefaultConfig); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           NewHandler(router, config),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err = <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	if err = <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// NewHandler builds the HTTP handler serving router.
func NewHandler(router subsystem.Router, config Config) http.Handler {
	bodyLimit := config.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultConfig.BodyLimit
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, middleware.Recoverer)

	if config.RateLimit > 0 {
		mux.Use(rateLimit(rate.NewLimiter(rate.Limit(config.RateLimit), max(config.Burst, 1))))
	}

	mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
		report := router.Healthcheck(r.Context())

		code := http.StatusOK
		if !report.Healthy() {
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, nil, report)
	})

	if config.Metrics {
		mux.Handle(metricsPath, promhttp.Handler())
	}

	mux.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		route := strings.Trim(r.URL.Path, "/")
		if !router.Has(route) {
			writeJSON(w, http.StatusNotFound, nil, subsystem.Values{"error": fmt.Sprintf("route %q not found", route)})
			return
		}

		input, err := readInput(w, r, bodyLimit)
		if err != nil {
			code := http.StatusBadRequest

			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				code = http.StatusRequestEntityTooLarge
			}

			writeJSON(w, code, nil, subsystem.Values{"error": err.Error()})
			return
		}

		call, err := router.Call(r.Context(), route, input, subsystem.Values{metaID: middleware.GetReqID(r.Context())})
		if err != nil {
			writeJSON(w, http.StatusNotFound, nil, subsystem.Values{"error": err.Error()})
			return
		}

		writeJSON(w, call.Output.Code, call.Output.Headers, call.Output.Body)
	})

	return mux
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, nil, subsystem.Values{"error": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// readInput maps the request to a route input. Header names are lowercased.
func readInput(w http.ResponseWriter, r *http.Request, bodyLimit int64) (subsystem.Input, error) {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}

	query := subsystem.Values{}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, bodyLimit))
	if err != nil {
		return subsystem.Input{}, err
	}

	var body any
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &body); err != nil {
			return subsystem.Input{}, errInvalidBody
		}
	}

	switch typed := body.(type) {
	case map[string]any:
		body = subsystem.MergeValues(query, typed)
	case nil:
		if len(query) > 0 {
			body = query
		}
	}

	return subsystem.Input{Headers: headers, Body: body}, nil
}

func writeJSON(w http.ResponseWriter, code int, headers map[string]string, body any) {
	for name, value := range headers {
		w.Header().Set(name, value)
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}

	w.WriteHeader(code)

	if body != nil {
		_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(body)
	}
}
