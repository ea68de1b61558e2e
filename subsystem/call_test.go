package subsystem_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

func Test_Output_MergeOutput(t *testing.T) {
	// arrange
	output := subsystem.NewOutput()
	output.Body = subsystem.Values{"a": 1}

	// act
	output.MergeOutput(&subsystem.Output{
		Headers: map[string]string{"x-trace": "1"},
		Body:    subsystem.Values{"b": 2},
	})

	// assert
	assert.Equal(t, http.StatusOK, output.Code, "a zero code should keep the current code")
	assert.Equal(t, map[string]string{"x-trace": "1"}, output.Headers)
	assert.Equal(t, subsystem.Values{"a": 1, "b": 2}, output.Body)
}

func Test_Output_MarshalsInAdaptorShape(t *testing.T) {
	// arrange
	output := subsystem.NewOutput()
	output.Body = "world"

	// act
	raw, err := jsoniter.ConfigFastest.Marshal(output)

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"headers":{},"body":"world","code":200}`, string(raw))
}

func Test_StatusError_IsDiscoverableThroughWrapping(t *testing.T) {
	// arrange
	err := fmt.Errorf("lookup failed: %w", subsystem.NotFound(subsystem.Values{"id": "42"}).WithMessage("no such book"))

	// act
	var statusErr *subsystem.StatusError
	found := errors.As(err, &statusErr)

	// assert
	require.True(t, found)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, subsystem.Values{"id": "42"}, statusErr.Body)
	assert.Equal(t, "404 Not Found: no such book", statusErr.Error())
}

func Test_PanicError_UnwrapsErrorValues(t *testing.T) {
	// arrange
	cause := errors.New("cause")

	// act & assert
	assert.ErrorIs(t, &subsystem.PanicError{Value: cause}, cause)
	assert.NoError(t, (&subsystem.PanicError{Value: "text"}).Unwrap())
}

func Test_HealthReport_MarshalJSON(t *testing.T) {
	// arrange
	report := subsystem.HealthReport{
		Status: subsystem.HealthKO,
		Errors: []error{errors.New("db down")},
	}

	// act
	raw, err := jsoniter.ConfigFastest.Marshal(report)
	healthy, errHealthy := jsoniter.ConfigFastest.Marshal(subsystem.HealthReport{Status: subsystem.HealthOK})

	// assert
	require.NoError(t, err)
	require.NoError(t, errHealthy)
	assert.JSONEq(t, `{"status":"KO","errors":["db down"]}`, string(raw))
	assert.JSONEq(t, `{"status":"OK"}`, string(healthy))
}

func Test_Meta_String(t *testing.T) {
	assert.Equal(t, "routes/hello.yaml/handle", subsystem.Meta{File: "routes/hello.yaml", Name: "handle"}.String())
	assert.Equal(t, "handle", subsystem.Meta{Name: "handle"}.String())
	assert.Equal(t, "config.yaml", subsystem.Meta{File: "config.yaml"}.String())
}
