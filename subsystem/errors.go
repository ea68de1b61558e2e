package subsystem

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrRouteNotFound is returned by Router.Call for names that were never registered.
	ErrRouteNotFound = errors.New("route not found")

	// ErrMissingHandle is the cause of a ShapeValidationError for routes that provide no handle.
	ErrMissingHandle = errors.New("route provides no handle")

	// ErrStateFrozen is returned when the bootstrap builder is used after Freeze.
	ErrStateFrozen = errors.New("state is frozen")

	// ErrConfigNotLoaded is returned when shared context is loaded before configuration.
	ErrConfigNotLoaded = errors.New("config must be loaded before context")
)

// MissingModuleError reports a required module that no source could provide.
type MissingModuleError struct {
	Hint  string
	Shape string
}

func (e *MissingModuleError) Error() string {
	return fmt.Sprintf("missing %s module %q", e.Shape, e.Hint)
}

// DuplicateModuleError reports a module hint that matched more than one candidate.
type DuplicateModuleError struct {
	Hint       string
	Candidates []string
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %q is ambiguous: %s", e.Hint, strings.Join(e.Candidates, ", "))
}

// ShapeValidationError reports a module or route that does not export what its role requires.
type ShapeValidationError struct {
	Location string
	Shape    string
	Err      error
}

func (e *ShapeValidationError) Error() string {
	return fmt.Sprintf("%s does not match shape %s: %v", e.Location, e.Shape, e.Err)
}

func (e *ShapeValidationError) Unwrap() error {
	return e.Err
}

// DuplicateRouteError reports two discovered routes with the same name.
type DuplicateRouteError struct {
	Route     string
	Locations []string
}

func (e *DuplicateRouteError) Error() string {
	if len(e.Locations) == 0 {
		return fmt.Sprintf("duplicate route %q", e.Route)
	}

	return fmt.Sprintf("duplicate route %q (%s)", e.Route, strings.Join(e.Locations, ", "))
}

// StatusError is a structured request error carrying the output an adaptor should see.
// The default error handler passes Code, Headers and Body through unchanged.
type StatusError struct {
	Code    int
	Headers map[string]string
	Body    any
	Message string
}

// NewStatusError creates a StatusError with the given code and body.
func NewStatusError(code int, body any) *StatusError {
	return &StatusError{Code: code, Body: body}
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
	}

	return fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
}

// WithMessage sets the message used by Error and returns the receiver.
func (e *StatusError) WithMessage(message string) *StatusError {
	e.Message = message
	return e
}

// WithHeader sets one response header and returns the receiver.
func (e *StatusError) WithHeader(key, value string) *StatusError {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}

	e.Headers[key] = value

	return e
}

// BadRequest creates a 400 StatusError.
func BadRequest(body any) *StatusError {
	return NewStatusError(http.StatusBadRequest, body)
}

// Unauthorized creates a 401 StatusError.
func Unauthorized(body any) *StatusError {
	return NewStatusError(http.StatusUnauthorized, body)
}

// Forbidden creates a 403 StatusError.
func Forbidden(body any) *StatusError {
	return NewStatusError(http.StatusForbidden, body)
}

// NotFound creates a 404 StatusError.
func NotFound(body any) *StatusError {
	return NewStatusError(http.StatusNotFound, body)
}

// InternalServerError creates a 500 StatusError.
func InternalServerError(body any) *StatusError {
	return NewStatusError(http.StatusInternalServerError, body)
}

// PanicError wraps a value recovered from a panicking stage.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the recovered value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}

	return nil
}

// IsFailureCode reports whether code signals a failed invocation to adaptors.
func IsFailureCode(code int) bool {
	return code >= http.StatusBadRequest
}
