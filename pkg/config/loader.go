package config

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/mohae/deepcopy"
)

// ExtraParametersKey holds connector parameter names, which may contain dots
// (for example "item/sp_owner@odata.bind"). The map is kept out of the koanf
// tree and merged as a single value.
const ExtraParametersKey = "session.extra_parameters"

// loader implements the Service interface for configuration management.
type loader struct {
	koanf         *koanf.Koanf
	validator     *validator.Validate
	metadata      Metadata
	metadataMu    sync.RWMutex
	currentConfig atomic.Value // stores *Config
	extra         map[string]any
}

// NewService creates a new configuration service with validation support.
func NewService() Service {
	return &loader{
		koanf:     koanf.New("."),
		validator: validator.New(),
		metadata: Metadata{
			Sources: make(map[string]SourceType),
		},
	}
}

// Load loads configuration from the specified sources with precedence order.
// Defaults come first, then environment variables, then sources in the order given,
// so the last source has highest precedence.
func (l *loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.reset()
	if err := l.loadDefaults(); err != nil {
		return nil, err
	}
	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}
	if err := l.loadSources(sources); err != nil {
		return nil, err
	}
	config, err := l.unmarshalAndValidate()
	if err != nil {
		return nil, err
	}
	l.currentConfig.Store(config)
	return config, nil
}

// reset clears the configuration and metadata.
func (l *loader) reset() {
	l.koanf = koanf.New(".")
	l.extra = make(map[string]any)

	l.metadataMu.Lock()
	l.metadata.Sources = make(map[string]SourceType)
	l.metadata.LoadedAt = time.Now()
	l.metadataMu.Unlock()
}

// loadDefaults loads the default configuration.
func (l *loader) loadDefaults() error {
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	l.koanf.Delete(ExtraParametersKey)
	for _, key := range l.koanf.Keys() {
		l.trackSource(key, SourceDefault)
	}
	if err := l.mergeExtra(Default().Session.ExtraParameters); err != nil {
		return err
	}
	l.trackSource(ExtraParametersKey, SourceDefault)
	return nil
}

// loadEnvironment loads configuration from FLOWFIX_ environment variables.
// Only variables declared through env struct tags are honored.
func (l *loader) loadEnvironment() error {
	envToPath := GenerateEnvToConfigMap()
	keysBefore := l.snapshot()
	if err := l.koanf.Load(env.Provider(".", env.Opt{
		Prefix: "FLOWFIX_",
		TransformFunc: func(key string, value string) (string, any) {
			if configPath, exists := envToPath[key]; exists {
				return configPath, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	l.trackChanged(keysBefore, SourceEnv)
	return nil
}

// loadSources loads configuration from additional sources.
func (l *loader) loadSources(sources []Source) error {
	for _, source := range sources {
		if source == nil || source.Type() == SourceEnv || source.Type() == SourceDefault {
			continue
		}
		if err := l.loadSource(source); err != nil {
			return err
		}
	}
	return nil
}

// loadSource merges the keys of a single source over the current values.
func (l *loader) loadSource(source Source) error {
	data, err := source.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", source.Type(), err)
	}
	data, extra, err := splitExtraParameters(data)
	if err != nil {
		return fmt.Errorf("invalid source %s: %w", source.Type(), err)
	}
	if extra != nil {
		if err := l.mergeExtra(extra); err != nil {
			return err
		}
		l.trackSource(ExtraParametersKey, source.Type())
	}
	if len(data) == 0 {
		return nil
	}
	keysBefore := l.snapshot()
	for key, value := range flattenMap("", data) {
		if err := l.koanf.Set(key, value); err != nil {
			return fmt.Errorf("failed to set key %s from source %s: %w", key, source.Type(), err)
		}
	}
	l.trackChanged(keysBefore, source.Type())
	return nil
}

func (l *loader) mergeExtra(extra map[string]any) error {
	if err := mergo.Merge(&l.extra, extra, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge %s: %w", ExtraParametersKey, err)
	}
	return nil
}

// splitExtraParameters returns data without session.extra_parameters, and that
// map on its own. data is not modified.
func splitExtraParameters(data map[string]any) (map[string]any, map[string]any, error) {
	session, ok := data["session"].(map[string]any)
	if !ok {
		return data, nil, nil
	}
	raw, ok := session["extra_parameters"]
	if !ok {
		return data, nil, nil
	}
	extra, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%s must be a mapping, got %T", ExtraParametersKey, raw)
	}
	rest := maps.Clone(data)
	trimmed := maps.Clone(session)
	delete(trimmed, "extra_parameters")
	if len(trimmed) == 0 {
		delete(rest, "session")
	} else {
		rest["session"] = trimmed
	}
	return rest, extra, nil
}

func (l *loader) snapshot() map[string]any {
	keys := make(map[string]any)
	for _, key := range l.koanf.Keys() {
		keys[key] = l.koanf.Get(key)
	}
	return keys
}

func (l *loader) trackChanged(before map[string]any, source SourceType) {
	for _, key := range l.koanf.Keys() {
		valBefore, existed := before[key]
		valAfter := l.koanf.Get(key)
		if !existed || fmt.Sprint(valBefore) != fmt.Sprint(valAfter) {
			l.trackSource(key, source)
		}
	}
}

// flattenMap flattens a nested map into dot-notation keys
func flattenMap(prefix string, m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nestedMap, ok := v.(map[string]any); ok && len(nestedMap) > 0 {
			for fk, fv := range flattenMap(key, nestedMap) {
				result[fk] = fv
			}
		} else {
			result[key] = v
		}
	}
	return result
}

// unmarshalAndValidate unmarshals the configuration and validates it.
func (l *loader) unmarshalAndValidate() (*Config, error) {
	var config Config
	if err := l.koanf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &config,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	extra, ok := deepcopy.Copy(l.extra).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to copy %s", ExtraParametersKey)
	}
	config.Session.ExtraParameters = extra
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration meets all validation requirements.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := validateCustom(config); err != nil {
		return fmt.Errorf("custom validation failed: %w", err)
	}
	return nil
}

// GetSource returns the source type for a specific configuration key.
func (l *loader) GetSource(key string) SourceType {
	l.metadataMu.RLock()
	defer l.metadataMu.RUnlock()

	if source, ok := l.metadata.Sources[key]; ok {
		return source
	}
	return SourceDefault
}

// trackSource records which source provided a specific configuration key.
func (l *loader) trackSource(key string, source SourceType) {
	l.metadataMu.Lock()
	defer l.metadataMu.Unlock()
	l.metadata.Sources[key] = source
}

// validateCustom performs validation beyond struct tags.
func validateCustom(config *Config) error {
	names := map[string]string{}
	for role, name := range map[string]string{
		"try_scope":     config.Flow.TryScope,
		"catch_scope":   config.Flow.CatchScope,
		"finally_scope": config.Flow.FinallyScope,
	} {
		if other, dup := names[name]; dup {
			return fmt.Errorf("flow.%s and flow.%s must name different actions (both %q)", other, role, name)
		}
		names[name] = role
	}
	if strings.ContainsAny(config.Flow.OutputSuffix+config.Package.OutputSuffix, `/\`) {
		return fmt.Errorf("output suffixes cannot contain path separators")
	}
	if config.Package.Lock && config.Package.LockTimeout <= 0 {
		return fmt.Errorf("package.lock_timeout must be positive when locking is enabled")
	}
	return nil
}
