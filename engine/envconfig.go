package engine

import (
	"errors"
	"io/fs"
	"maps"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// nestingSeparator splits an environment key into nested config keys.
const nestingSeparator = "__"

// LoadEnvConfig builds configuration from environment variables starting with "<PREFIX>_".
//
// Variables from envFile are read first and the process environment wins over them. A missing
// envFile is not an error. The prefix is stripped, keys are lowercased and "__" separates nesting
// levels, so SUBSYSTEM_HTTP__ADDR=":8080" becomes {"http": {"addr": ":8080"}}. Values are parsed
// as JSON when possible and kept as strings otherwise. Keys are applied in sorted order, so a
// nested key such as SUBSYSTEM_A__B is merged over a plain SUBSYSTEM_A object or replaces a scalar.
func LoadEnvConfig(prefix, envFile string, environ []string) (subsystem.Values, error) {
	variables := map[string]string{}

	if envFile != "" {
		fromFile, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		for key, value := range fromFile {
			variables[key] = value
		}
	}

	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if ok {
			variables[key] = value
		}
	}

	keyPrefix := strings.ToUpper(prefix) + "_"
	config := subsystem.Values{}

	for _, key := range slices.Sorted(maps.Keys(variables)) {
		if !strings.HasPrefix(strings.ToUpper(key), keyPrefix) {
			continue
		}

		path := strings.Split(strings.ToLower(key[len(keyPrefix):]), nestingSeparator)
		setPath(config, path, parseEnvValue(variables[key]))
	}

	return config, nil
}

func setPath(config subsystem.Values, path []string, value any) {
	node := config
	for _, segment := range path[:len(path)-1] {
		next, ok := node[segment].(subsystem.Values)
		if !ok {
			next = subsystem.Values{}
			node[segment] = next
		}

		node = next
	}

	node[path[len(path)-1]] = value
}

func parseEnvValue(raw string) any {
	var parsed any
	if err := jsoniter.ConfigFastest.UnmarshalFromString(raw, &parsed); err == nil {
		return parsed
	}

	return raw
}
