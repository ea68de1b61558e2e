package presetkit

import (
	"errors"
	"fmt"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

var (
	// ErrMissingContextValue is returned by FromContext when the key is absent.
	ErrMissingContextValue = errors.New("missing context value")

	// ErrContextValueType is returned by FromContext when the value has another type.
	ErrContextValueType = errors.New("context value has unexpected type")
)

var (
	configJSON = jsoniter.ConfigCompatibleWithStandardLibrary
	validate   = validator.New(validator.WithRequiredStructEnabled())
)

// DecodeConfig decodes the config section at path into out, a pointer to a struct with json tags.
//
// Zero fields are then filled from defaults, a value of the same struct type, and the result is
// validated with its `validate` tags. A missing section decodes to the defaults.
func DecodeConfig[T any](state *subsystem.State, path string, out *T, defaults T) error {
	if section, ok := state.GetConfig(path); ok && section != nil {
		raw, err := configJSON.Marshal(section)
		if err != nil {
			return fmt.Errorf("%s config: %w", path, err)
		}

		if err = configJSON.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s config: %w", path, err)
		}
	}

	if err := mergo.Merge(out, defaults); err != nil {
		return fmt.Errorf("%s config defaults: %w", path, err)
	}

	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%s config: %w", path, err)
	}

	return nil
}

// FromContext returns the value a context stage stored under key.
func FromContext[T any](values subsystem.Values, key string) (T, error) {
	var zero T

	raw, ok := values[key]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrMissingContextValue, key)
	}

	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T, want %T", ErrContextValueType, key, raw, zero)
	}

	return typed, nil
}
