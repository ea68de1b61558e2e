// Package presetkit holds the helpers the bundled presets share: decoding a config section into a
// typed struct with defaults and validation, typed access to context values, and retrying with
// exponential backoff while a dependency comes up.
package presetkit
