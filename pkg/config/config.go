package config

import (
	"context"
	"time"
)

// Config represents the complete configuration for flowfix.
type Config struct {
	Flow    FlowConfig    `koanf:"flow" json:"flow" yaml:"flow" validate:"required"`
	Session SessionConfig `koanf:"session" json:"session" yaml:"session" validate:"required"`
	Package PackageConfig `koanf:"package" json:"package" yaml:"package" validate:"required"`
	Runtime RuntimeConfig `koanf:"runtime" json:"runtime" yaml:"runtime" validate:"required"`
	CLI     CLIConfig     `koanf:"cli" json:"cli" yaml:"cli"`
}

// FlowConfig controls how a workflow definition is patched.
type FlowConfig struct {
	Strategy     string `koanf:"strategy" json:"strategy" yaml:"strategy" validate:"oneof=rebuild relocate" env:"FLOWFIX_FLOW_STRATEGY"`
	ActionsPath  string `koanf:"actions_path" json:"actions_path" yaml:"actions_path" validate:"required" env:"FLOWFIX_FLOW_ACTIONS_PATH"`
	TryScope     string `koanf:"try_scope" json:"try_scope" yaml:"try_scope" validate:"required" env:"FLOWFIX_FLOW_TRY_SCOPE"`
	CatchScope   string `koanf:"catch_scope" json:"catch_scope" yaml:"catch_scope" validate:"required" env:"FLOWFIX_FLOW_CATCH_SCOPE"`
	FinallyScope string `koanf:"finally_scope" json:"finally_scope" yaml:"finally_scope" validate:"required" env:"FLOWFIX_FLOW_FINALLY_SCOPE"`
	FreshIDs     bool   `koanf:"fresh_ids" json:"fresh_ids" yaml:"fresh_ids" env:"FLOWFIX_FLOW_FRESH_IDS"`
	OutputSuffix string `koanf:"output_suffix" json:"output_suffix" yaml:"output_suffix" env:"FLOWFIX_FLOW_OUTPUT_SUFFIX"`
}

// SessionConfig describes the record the injected scopes update through the connector.
type SessionConfig struct {
	ConnectionName            string         `koanf:"connection_name" json:"connection_name" yaml:"connection_name" validate:"required" env:"FLOWFIX_SESSION_CONNECTION_NAME"`
	APIID                     string         `koanf:"api_id" json:"api_id" yaml:"api_id" validate:"required" env:"FLOWFIX_SESSION_API_ID"`
	OperationID               string         `koanf:"operation_id" json:"operation_id" yaml:"operation_id" validate:"required" env:"FLOWFIX_SESSION_OPERATION_ID"`
	EntityName                string         `koanf:"entity_name" json:"entity_name" yaml:"entity_name" validate:"required" env:"FLOWFIX_SESSION_ENTITY_NAME"`
	RecordVariable            string         `koanf:"record_variable" json:"record_variable" yaml:"record_variable" validate:"required" env:"FLOWFIX_SESSION_RECORD_VARIABLE"`
	ErrorVariable             string         `koanf:"error_variable" json:"error_variable" yaml:"error_variable" validate:"required" env:"FLOWFIX_SESSION_ERROR_VARIABLE"`
	TotalFoldersVariable      string         `koanf:"total_folders_variable" json:"total_folders_variable" yaml:"total_folders_variable" env:"FLOWFIX_SESSION_TOTAL_FOLDERS_VARIABLE"`
	UniquePermissionsVariable string         `koanf:"unique_permissions_variable" json:"unique_permissions_variable" yaml:"unique_permissions_variable" env:"FLOWFIX_SESSION_UNIQUE_PERMISSIONS_VARIABLE"`
	StatusCompleted           int            `koanf:"status_completed" json:"status_completed" yaml:"status_completed" validate:"min=0" env:"FLOWFIX_SESSION_STATUS_COMPLETED"`
	StatusFailed              int            `koanf:"status_failed" json:"status_failed" yaml:"status_failed" validate:"min=0" env:"FLOWFIX_SESSION_STATUS_FAILED"`
	ExtraParameters           map[string]any `koanf:"extra_parameters" json:"extra_parameters" yaml:"extra_parameters"`
}

// PackageConfig controls solution zip handling.
type PackageConfig struct {
	WorkflowPattern string        `koanf:"workflow_pattern" json:"workflow_pattern" yaml:"workflow_pattern" validate:"required" env:"FLOWFIX_PACKAGE_WORKFLOW_PATTERN"`
	OutputSuffix    string        `koanf:"output_suffix" json:"output_suffix" yaml:"output_suffix" env:"FLOWFIX_PACKAGE_OUTPUT_SUFFIX"`
	Lock            bool          `koanf:"lock" json:"lock" yaml:"lock" env:"FLOWFIX_PACKAGE_LOCK"`
	LockTimeout     time.Duration `koanf:"lock_timeout" json:"lock_timeout" yaml:"lock_timeout" env:"FLOWFIX_PACKAGE_LOCK_TIMEOUT"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	LogLevel  string `koanf:"log_level" json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error disabled" env:"FLOWFIX_LOG_LEVEL"`
	LogJSON   bool   `koanf:"log_json" json:"log_json" yaml:"log_json" env:"FLOWFIX_LOG_JSON"`
	LogSource bool   `koanf:"log_source" json:"log_source" yaml:"log_source" env:"FLOWFIX_LOG_SOURCE"`
}

// CLIConfig contains CLI-specific configuration.
type CLIConfig struct {
	Format  string `koanf:"format" json:"format" yaml:"format" validate:"oneof=auto json text" env:"FLOWFIX_FORMAT"`
	NoColor bool   `koanf:"no_color" json:"no_color" yaml:"no_color" env:"FLOWFIX_NO_COLOR"`
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type for a specific configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads configuration using the default service.
func Load() (*Config, error) {
	service := NewService()
	return service.Load(context.Background())
}

// Default returns the configuration matching the SharePoint permission scanner solution.
func Default() *Config {
	return &Config{
		Flow: FlowConfig{
			Strategy:     "rebuild",
			ActionsPath:  "properties.definition.actions",
			TryScope:     "Try_Scope",
			CatchScope:   "Catch_Scope",
			FinallyScope: "Finally_Scope",
			OutputSuffix: "_FIXED",
		},
		Session: SessionConfig{
			ConnectionName:            "shared_commondataserviceforapps",
			APIID:                     "/providers/Microsoft.PowerApps/apis/shared_commondataserviceforapps",
			OperationID:               "UpdateRecord",
			EntityName:                "sp_scansessions",
			RecordVariable:            "ScanSessionId",
			ErrorVariable:             "HasError",
			TotalFoldersVariable:      "TotalFolders",
			UniquePermissionsVariable: "FoldersWithUniquePerms",
			StatusCompleted:           100000000,
			StatusFailed:              100000002,
			ExtraParameters:           map[string]any{},
		},
		Package: PackageConfig{
			WorkflowPattern: "Workflows/*.json",
			OutputSuffix:    "_FIXED",
			Lock:            true,
			LockTimeout:     5 * time.Second,
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
		CLI: CLIConfig{
			Format: "auto",
		},
	}
}
