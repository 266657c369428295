package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultProvider marks the built-in defaults; the loader always applies them first.
type defaultProvider struct{}

// NewDefaultProvider creates a source standing for the built-in defaults.
func NewDefaultProvider() Source {
	return &defaultProvider{}
}

func (d *defaultProvider) Load() (map[string]any, error) {
	return make(map[string]any), nil
}

func (d *defaultProvider) Type() SourceType {
	return SourceDefault
}

// envProvider marks environment loading, which is handled natively by koanf in the loader.
type envProvider struct{}

// NewEnvProvider creates a source standing for FLOWFIX_ environment variables.
func NewEnvProvider() Source {
	return &envProvider{}
}

func (e *envProvider) Load() (map[string]any, error) {
	return make(map[string]any), nil
}

func (e *envProvider) Type() SourceType {
	return SourceEnv
}

// FlagPaths maps CLI flag names to configuration paths.
var FlagPaths = map[string]string{
	"strategy":      "flow.strategy",
	"try-scope":     "flow.try_scope",
	"catch-scope":   "flow.catch_scope",
	"finally-scope": "flow.finally_scope",
	"actions-path":  "flow.actions_path",
	"fresh-ids":     "flow.fresh_ids",
	"suffix":        "flow.output_suffix",
	"workflow-glob": "package.workflow_pattern",
	"no-lock":       "package.lock",
	"lock-timeout":  "package.lock_timeout",
	"log-level":     "runtime.log_level",
	"log-json":      "runtime.log_json",
	"log-source":    "runtime.log_source",
	"format":        "cli.format",
	"no-color":      "cli.no_color",
}

// negatedFlags hold the inverse of the configuration value they map to.
var negatedFlags = map[string]bool{
	"no-lock": true,
}

// cliProvider implements Source interface for CLI flags.
type cliProvider struct {
	flags map[string]any
}

// NewCLIProvider creates a new CLI flags configuration source.
func NewCLIProvider(flags map[string]any) Source {
	return &cliProvider{
		flags: flags,
	}
}

// Load returns the CLI flags as configuration data.
func (c *cliProvider) Load() (map[string]any, error) {
	config := make(map[string]any)
	for key, value := range c.flags {
		path, ok := FlagPaths[key]
		if !ok {
			continue
		}
		if negatedFlags[key] {
			b, isBool := value.(bool)
			if !isBool {
				return nil, fmt.Errorf("flag %s must be a boolean", key)
			}
			value = !b
		}
		if err := setNested(config, path, value); err != nil {
			return nil, fmt.Errorf("failed to set CLI flag %s: %w", key, err)
		}
	}
	return config, nil
}

func (c *cliProvider) Type() SourceType {
	return SourceCLI
}

// setNested sets a value in a nested map structure using dot notation.
// It returns an error if a path conflict is encountered.
func setNested(m map[string]any, path string, value any) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	current := m
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return fmt.Errorf("configuration conflict: key %q is not a map", strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}

// yamlProvider implements Source interface for YAML files.
type yamlProvider struct {
	path string
}

// NewYAMLProvider creates a new YAML file configuration source.
// A missing file yields no values.
func NewYAMLProvider(path string) Source {
	return &yamlProvider{
		path: path,
	}
}

// Load reads configuration from a YAML file.
func (y *yamlProvider) Load() (map[string]any, error) {
	data, err := os.ReadFile(y.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return filterNilValues(config), nil
}

func (y *yamlProvider) Type() SourceType {
	return SourceYAML
}

// filterNilValues recursively removes nil values from a map
// This prevents koanf from overriding existing values with nil
func filterNilValues(m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		if v == nil {
			continue
		}
		if nestedMap, ok := v.(map[string]any); ok {
			filtered := filterNilValues(nestedMap)
			if len(filtered) > 0 {
				result[k] = filtered
			}
		} else {
			result[k] = v
		}
	}
	return result
}
