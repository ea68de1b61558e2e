package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
	"github.com/AntonStoeckl/subsystem-go/testutil/helper"
)

func Test_LoadEnvConfig_NestsAndParsesValues(t *testing.T) {
	// arrange
	dir := t.TempDir()
	envFile := helper.GivenFile(t, dir, ".env", "APP_DB__HOST=from-file\nAPP_DB__PORT=5432\nOTHER=ignored\n")
	environ := []string{"APP_DB__HOST=from-env", "APP_FEATURES=[\"a\",\"b\"]", "APP_DEBUG=true", "PATH=/bin"}

	// act
	config, err := engine.LoadEnvConfig("app", envFile, environ)

	// assert
	require.NoError(t, err)
	assert.Equal(t, subsystem.Values{
		"db":       subsystem.Values{"host": "from-env", "port": float64(5432)},
		"features": []any{"a", "b"},
		"debug":    true,
	}, config)
}

func Test_LoadEnvConfig_MissingEnvFileIsFine(t *testing.T) {
	// act
	config, err := engine.LoadEnvConfig("subsystem", filepath.Join(t.TempDir(), ".env"), []string{"SUBSYSTEM_NAME=demo"})

	// assert
	require.NoError(t, err)
	assert.Equal(t, subsystem.Values{"name": "demo"}, config)
}

func Test_LoadEnvConfig_NestedKeysWinDeterministically(t *testing.T) {
	// arrange
	environ := []string{
		"SUBSYSTEM_HTTP__PORT=8080",
		"SUBSYSTEM_A__B=2",
		"SUBSYSTEM_A=1",
		"SUBSYSTEM_HTTP={\"addr\": \"localhost\"}",
	}

	for range 20 {
		// act
		config, err := engine.LoadEnvConfig("subsystem", "", environ)

		// assert
		require.NoError(t, err)
		assert.Equal(t, subsystem.Values{
			"a":    subsystem.Values{"b": float64(2)},
			"http": subsystem.Values{"addr": "localhost", "port": float64(8080)},
		}, config)
	}
}
