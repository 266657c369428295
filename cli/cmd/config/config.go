package config

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/compozy/flowfix/cli/cmd"
	"github.com/compozy/flowfix/pkg/config"
	"github.com/compozy/flowfix/pkg/logger"
)

// NewConfigCommand creates the config command using the unified command pattern
func NewConfigCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Configuration inspection",
		Long:  `Inspect the configuration flowfix resolves from defaults, environment, config file and flags.`,
	}
	command.AddCommand(
		NewConfigShowCommand(),
		NewConfigValidateCommand(),
	)
	return command
}

// NewConfigShowCommand creates the config show subcommand
func NewConfigShowCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration values",
		Long: `Display the effective configuration values. Text mode prints a table, or
YAML with --yaml. Pass --sources to see where each value came from.`,
		Args: cobra.NoArgs,
		RunE: executeConfigShowCommand,
	}
	command.Flags().Bool("sources", false, "Show the source of each value")
	command.Flags().Bool("yaml", false, "Print YAML instead of a table in text mode")
	return command
}

func executeConfigShowCommand(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ModeHandlers{
		JSON: handleConfigShowJSON,
		Text: handleConfigShowText,
	}, args)
}

func handleConfigShowJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	logger.FromContext(ctx).Debug("executing config show command in JSON mode")
	view, err := buildView(ctx, cobraCmd)
	if err != nil {
		return err
	}
	return executor.WriteJSON(view)
}

func handleConfigShowText(ctx context.Context, cobraCmd *cobra.Command, _ *cmd.CommandExecutor, _ []string) error {
	logger.FromContext(ctx).Debug("executing config show command in text mode")
	view, err := buildView(ctx, cobraCmd)
	if err != nil {
		return err
	}
	asYAML, err := cobraCmd.Flags().GetBool("yaml")
	if err != nil {
		return fmt.Errorf("failed to get yaml flag: %w", err)
	}
	if asYAML {
		return outputYAML(cobraCmd.OutOrStdout(), view)
	}
	return outputTable(cobraCmd.OutOrStdout(), view)
}

// View is the flattened configuration with optional per-key sources.
type View struct {
	Config  map[string]any               `json:"config" yaml:"config"`
	Sources map[string]config.SourceType `json:"sources,omitempty" yaml:"sources,omitempty"`
}

func buildView(ctx context.Context, cobraCmd *cobra.Command) (*View, error) {
	showSources, err := cobraCmd.Flags().GetBool("sources")
	if err != nil {
		return nil, fmt.Errorf("failed to get sources flag: %w", err)
	}
	manager := config.ManagerFromContext(ctx)
	return NewView(config.FromContext(ctx), manager.Service, showSources)
}

// NewView flattens cfg into dotted keys. With showSources, every key carries the
// source that last set it according to service.
func NewView(cfg *config.Config, service config.Service, showSources bool) (*View, error) {
	flat, err := flattenConfig(cfg)
	if err != nil {
		return nil, err
	}
	view := &View{Config: flat}
	if showSources {
		view.Sources = make(map[string]config.SourceType, len(flat))
		for key := range flat {
			view.Sources[key] = service.GetSource(key)
		}
	}
	return view, nil
}

// flattenConfig converts nested config to a flat key-value map. Extra
// parameters stay one entry since their names may contain dots.
func flattenConfig(cfg *config.Config) (map[string]any, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to flatten configuration: %w", err)
	}
	k.Delete(config.ExtraParametersKey)
	flat := k.All()
	for key, value := range flat {
		if stringer, ok := value.(fmt.Stringer); ok {
			flat[key] = stringer.String()
		}
	}
	extra := cfg.Session.ExtraParameters
	if extra == nil {
		extra = map[string]any{}
	}
	flat[config.ExtraParametersKey] = extra
	return flat, nil
}

// outputYAML outputs configuration as YAML
func outputYAML(w io.Writer, view *View) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(view); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return encoder.Close()
}

// outputTable outputs configuration as a table
func outputTable(out io.Writer, view *View) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	keys := make([]string, 0, len(view.Config))
	for k := range view.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	showSources := view.Sources != nil
	if showSources {
		fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
		fmt.Fprintln(w, "---\t-----\t------")
	} else {
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintln(w, "---\t-----")
	}
	for _, key := range keys {
		value := view.Config[key]
		if showSources {
			fmt.Fprintf(w, "%s\t%v\t%s\n", key, value, view.Sources[key])
		} else {
			fmt.Fprintf(w, "%s\t%v\n", key, value)
		}
	}
	return w.Flush()
}

// NewConfigValidateCommand creates the config validate subcommand
func NewConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  executeConfigValidateCommand,
	}
}

func executeConfigValidateCommand(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ModeHandlers{
		JSON: handleConfigValidateJSON,
		Text: handleConfigValidateText,
	}, args)
}

func validate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	service := config.ManagerFromContext(ctx).Service
	if err := service.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

func handleConfigValidateJSON(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	if err := validate(ctx); err != nil {
		return err
	}
	return executor.WriteJSON(map[string]any{"valid": true, "message": "Configuration is valid"})
}

func handleConfigValidateText(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	if err := validate(ctx); err != nil {
		return err
	}
	executor.Printer().Success("Configuration is valid")
	return nil
}
