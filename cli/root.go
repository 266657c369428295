package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/cli/cmd/config"
	"github.com/compozy/flowfix/cli/cmd/extract"
	"github.com/compozy/flowfix/cli/cmd/fix"
	"github.com/compozy/flowfix/cli/cmd/pack"
	"github.com/compozy/flowfix/cli/cmd/patch"
	"github.com/compozy/flowfix/cli/cmd/verify"
	"github.com/compozy/flowfix/cli/helpers"
	pkgconfig "github.com/compozy/flowfix/pkg/config"
	"github.com/compozy/flowfix/pkg/logger"
	"github.com/compozy/flowfix/pkg/version"
)

const defaultConfigFile = "flowfix.yaml"

// RootCmd builds the flowfix command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowfix",
		Short: "Repair try/catch/finally scopes in Power Automate flows",
		Long: `flowfix repairs the error handling layout of Power Automate cloud flows.

It moves a Catch scope that was nested inside the Try scope back to the top
level, wires it to run when the Try scope fails or times out, and injects a
Finally scope that records the run outcome. Flows can be patched as plain
definition files or directly inside an exported solution zip.`,
		Version:           version.Get().String(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return SetupGlobalConfig(cmd) },
	}
	addGlobalFlags(root)
	root.AddCommand(
		patch.NewPatchCommand(),
		pack.NewPackCommand(),
		fix.NewFixCommand(),
		extract.NewExtractCommand(),
		verify.NewVerifyCommand(),
		config.NewConfigCommand(),
	)
	return root
}

func addGlobalFlags(root *cobra.Command) {
	defaults := pkgconfig.Default()
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the config file")
	flags.String("env-file", ".env", "Path to an environment file loaded before configuration")

	flags.String("strategy", defaults.Flow.Strategy, "Patch strategy (rebuild, relocate)")
	flags.String("try-scope", defaults.Flow.TryScope, "Name of the Try scope action")
	flags.String("catch-scope", defaults.Flow.CatchScope, "Name of the Catch scope action")
	flags.String("finally-scope", defaults.Flow.FinallyScope, "Name of the Finally scope action")
	flags.String("actions-path", defaults.Flow.ActionsPath, "Dotted path to the actions object in the flow document")
	flags.Bool("fresh-ids", defaults.Flow.FreshIDs, "Generate new operation metadata IDs for injected actions")
	flags.String("suffix", defaults.Flow.OutputSuffix, "Suffix added to patched flow file names")

	flags.String("workflow-glob", defaults.Package.WorkflowPattern, "Pattern matching workflow entries inside a solution")
	flags.Bool("no-lock", !defaults.Package.Lock, "Do not lock the output package while writing")
	flags.Duration("lock-timeout", defaults.Package.LockTimeout, "How long to wait for the output lock")

	flags.String("log-level", defaults.Runtime.LogLevel, "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", defaults.Runtime.LogJSON, "Write logs as JSON")
	flags.Bool("log-source", defaults.Runtime.LogSource, "Include source locations in logs")
	flags.String("format", defaults.CLI.Format, "Output format (auto, json, text)")
	flags.Bool("no-color", defaults.CLI.NoColor, "Disable colored output")
}

// SetupGlobalConfig loads configuration for cmd and stores the manager and
// logger on its context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := loadEnvFile(cmd); err != nil {
		return helpers.WrapCliError(helpers.CodeConfigError, "Failed to load environment file", err)
	}
	sources, err := configSources(cmd)
	if err != nil {
		return helpers.WrapCliError(helpers.CodeConfigError, "Failed to read configuration flags", err)
	}
	manager := pkgconfig.NewManager(pkgconfig.NewService())
	cfg, err := manager.Load(ctx, sources...)
	if err != nil {
		return helpers.WrapCliError(helpers.CodeConfigError, "Invalid configuration", err)
	}
	log := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, cfg.Runtime.LogSource)
	ctx = pkgconfig.ContextWithManager(ctx, manager)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	log.Debug("Configuration loaded", "strategy", cfg.Flow.Strategy, "format", cfg.CLI.Format)
	return nil
}

// configSources lists configuration sources in increasing precedence.
func configSources(cmd *cobra.Command) ([]pkgconfig.Source, error) {
	sources := []pkgconfig.Source{
		pkgconfig.NewDefaultProvider(),
		pkgconfig.NewEnvProvider(),
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configFile != "" {
		if cmd.Flags().Changed("config") {
			if _, statErr := os.Stat(configFile); statErr != nil {
				return nil, fmt.Errorf("config file %s: %w", configFile, statErr)
			}
		}
		sources = append(sources, pkgconfig.NewYAMLProvider(configFile))
	}
	cliFlags := make(map[string]any)
	extractCLIFlags(cmd, cliFlags)
	if len(cliFlags) > 0 {
		sources = append(sources, pkgconfig.NewCLIProvider(cliFlags))
	}
	return sources, nil
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	return execute(ctx, RootCmd())
}

func execute(ctx context.Context, root *cobra.Command) int {
	if err := root.ExecuteContext(ctx); err != nil {
		if !helpers.IsReported(err) {
			mode, color := fallbackOutput(root)
			helpers.OutputError(root.ErrOrStderr(), err, mode, color)
		}
		return 1
	}
	return 0
}

// fallbackOutput resolves the output mode and color for errors raised before
// configuration is loaded, from the format and no-color flags or their
// environment variables.
func fallbackOutput(root *cobra.Command) (helpers.Mode, bool) {
	flags := root.PersistentFlags()
	format, err := flags.GetString("format")
	if err != nil || !flags.Changed("format") {
		format = os.Getenv(pkgconfig.GetEnvVarForConfigPath("cli.format"))
	}
	noColor, err := flags.GetBool("no-color")
	if err != nil || !flags.Changed("no-color") {
		noColor, _ = strconv.ParseBool(os.Getenv(pkgconfig.GetEnvVarForConfigPath("cli.no_color")))
	}
	return helpers.ModeForFormat(format), helpers.ColorEnabled(noColor)
}
