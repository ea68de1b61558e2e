package subsystem

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

// Health statuses reported by Router.Healthcheck.
const (
	HealthOK = "OK"
	HealthKO = "KO"
)

// Router is the boundary adaptors call into.
type Router interface {
	// Call runs the named route. It returns ErrRouteNotFound for unknown names and otherwise
	// always returns a complete CallContext, including for failed invocations.
	Call(ctx context.Context, route string, input Input, meta Values) (*CallContext, error)

	// Has reports whether the route was registered.
	Has(route string) bool

	// Healthcheck runs every health check and aggregates their failures.
	Healthcheck(ctx context.Context) HealthReport

	// Routes lists the registered route names in lexical order.
	Routes() []string
}

// HealthReport aggregates the result of all health checks.
type HealthReport struct {
	Status string
	Errors []error
}

// Healthy reports whether every health check passed.
func (r HealthReport) Healthy() bool {
	return r.Status == HealthOK
}

// MarshalJSON renders errors as their messages and omits them when there are none.
func (r HealthReport) MarshalJSON() ([]byte, error) {
	type report struct {
		Status string   `json:"status"`
		Errors []string `json:"errors,omitempty"`
	}

	out := report{Status: r.Status}
	for _, err := range r.Errors {
		out.Errors = append(out.Errors, err.Error())
	}

	return jsoniter.ConfigFastest.Marshal(out)
}
