package subsystem

import (
	"net/http"
)

// Input is what an adaptor hands to a route.
type Input struct {
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// Output is what a route hands back to the adaptor.
// Code defaults to 200; handlers and error stages set a failure code explicitly.
type Output struct {
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
	Code    int               `json:"code"`
}

// NewOutput returns the success output every invocation starts with.
func NewOutput() Output {
	return Output{Headers: map[string]string{}, Code: http.StatusOK}
}

// MergeOutput merges a partial output into o.
// Headers are unioned, the body is deep-merged and a non-zero code replaces the current one.
func (o *Output) MergeOutput(partial *Output) {
	if partial == nil {
		return
	}

	if o.Headers == nil {
		o.Headers = make(map[string]string, len(partial.Headers))
	}

	for key, value := range partial.Headers {
		o.Headers[key] = value
	}

	if partial.Body != nil {
		o.Body = Merge(o.Body, partial.Body)
	}

	if partial.Code != 0 {
		o.Code = partial.Code
	}
}

// Result is the return value of a route handle.
// Output is merged into the call output, Error is recorded on the CallContext as is.
type Result struct {
	Output *Output
	Error  error
}

// CallContext is the per-invocation record threaded through the call pipeline.
// It is created fresh for every call and never shared between calls.
type CallContext struct {
	ID    string
	Route string

	// Config is the shared configuration. It must be treated as read-only.
	Config Values

	// Context is a private deep copy of the shared context merged with the caller's meta.
	Context Values

	Input  Input
	Output Output
	Error  error

	// Unhandled is set when no error stage mapped a failure and the runtime escalated it.
	Unhandled bool

	State *State
}

// Failed reports whether the output carries a failure code.
func (c *CallContext) Failed() bool {
	return IsFailureCode(c.Output.Code)
}
