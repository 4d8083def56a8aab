package relayerconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// LoadConfigDirs reads every .json and .toml file under the given
// directories and merges them into a single configuration. Later files
// override scalar fields, map sections are unioned. String values are
// passed through env / command substitution before validation.
func LoadConfigDirs(dirs []string) (*AppConfig, error) {
	config := &AppConfig{
		Assets:    map[string]AssetConfig{},
		EVM:       map[string]*EVMChainConfig{},
		Substrate: map[string]*SubstrateChainConfig{},
	}

	var files []string

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read config dir %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext == ".json" || ext == ".toml" {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no config files found in %v", dirs)
	}

	sort.Strings(files)

	for _, file := range files {
		partial := &AppConfig{}

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		switch strings.ToLower(filepath.Ext(file)) {
		case ".json":
			decoder := json.NewDecoder(bytes.NewReader(data))
			if err := decoder.Decode(partial); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", file, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, partial); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", file, err)
			}
		}

		mergeConfig(config, partial)
	}

	if err := substituteStrings(reflect.ValueOf(config).Elem()); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func mergeConfig(dst, src *AppConfig) {
	if src.Port != 0 {
		dst.Port = src.Port
	}

	if src.StorePath != "" {
		dst.StorePath = src.StorePath
	}

	if src.Logger != (LoggerConfig{}) {
		dst.Logger = src.Logger
	}

	if src.Telemetry != (TelemetryConfig{}) {
		dst.Telemetry = src.Telemetry
	}

	dst.Features.GovernanceRelay = dst.Features.GovernanceRelay || src.Features.GovernanceRelay
	dst.Features.DataQuery = dst.Features.DataQuery || src.Features.DataQuery
	dst.Features.PrivateTxRelay = dst.Features.PrivateTxRelay || src.Features.PrivateTxRelay

	for name, asset := range src.Assets {
		dst.Assets[name] = asset
	}

	for name, chain := range src.EVM {
		dst.EVM[name] = chain
	}

	for name, chain := range src.Substrate {
		dst.Substrate[name] = chain
	}
}

// substituteStrings walks every string field. Values of the form $NAME are
// replaced with the environment variable, values of the form "> cmd" with
// the stdout of the command, executed once at startup.
func substituteStrings(v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		if !v.CanSet() {
			return nil
		}

		substituted, err := substituteValue(v.String())
		if err != nil {
			return err
		}

		v.SetString(substituted)
	case reflect.Ptr:
		if !v.IsNil() {
			return substituteStrings(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := substituteStrings(v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := substituteStrings(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			elem := v.MapIndex(key)
			if elem.Kind() == reflect.Ptr || elem.Kind() == reflect.Interface {
				if err := substituteStrings(elem); err != nil {
					return err
				}

				continue
			}

			// map values are not addressable, substitute on a copy
			copied := reflect.New(elem.Type()).Elem()
			copied.Set(elem)

			if err := substituteStrings(copied); err != nil {
				return err
			}

			v.SetMapIndex(key, copied)
		}
	}

	return nil
}

func substituteValue(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, "$"):
		name := strings.TrimPrefix(value, "$")

		resolved, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s not set", name)
		}

		return resolved, nil
	case strings.HasPrefix(value, "> "):
		command := strings.TrimPrefix(value, "> ")

		out, err := exec.Command("sh", "-c", command).Output() //nolint:gosec
		if err != nil {
			return "", fmt.Errorf("config command %q failed: %w", command, err)
		}

		return strings.TrimSpace(string(out)), nil
	default:
		return value, nil
	}
}
