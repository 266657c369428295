package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/cli/helpers"
	"github.com/compozy/flowfix/engine/fixer"
	"github.com/compozy/flowfix/engine/flow"
	"github.com/compozy/flowfix/engine/solution"
	"github.com/compozy/flowfix/pkg/config"
	"github.com/compozy/flowfix/pkg/logger"
)

// CommandExecutor handles common setup and execution patterns for CLI commands.
type CommandExecutor struct {
	mode  helpers.Mode
	color bool
	fs    afero.Fs
	cfg   *config.Config
	out   io.Writer
}

// HandlerFunc defines the signature for command handlers.
type HandlerFunc func(ctx context.Context, cmd *cobra.Command, executor *CommandExecutor, args []string) error

// ModeHandlers contains handlers for different execution modes.
type ModeHandlers struct {
	JSON HandlerFunc
	Text HandlerFunc
}

// NewCommandExecutor creates a new command executor with all necessary setup.
func NewCommandExecutor(cmd *cobra.Command) *CommandExecutor {
	ctx := cmd.Context()
	mode := helpers.DetectMode(cmd)
	logger.FromContext(ctx).Debug("Detected execution mode", "mode", mode)
	return &CommandExecutor{
		mode:  mode,
		color: helpers.ShouldUseColor(cmd),
		fs:    afero.NewOsFs(),
		cfg:   config.FromContext(ctx),
		out:   cmd.OutOrStdout(),
	}
}

// Execute runs the appropriate handler based on the detected mode.
func (e *CommandExecutor) Execute(ctx context.Context, cmd *cobra.Command, handlers ModeHandlers, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	switch e.mode {
	case helpers.ModeJSON:
		if handlers.JSON == nil {
			return fmt.Errorf("JSON mode handler not implemented")
		}
		return handlers.JSON(ctx, cmd, e, args)
	case helpers.ModeText:
		if handlers.Text == nil {
			return fmt.Errorf("text mode handler not implemented")
		}
		return handlers.Text(ctx, cmd, e, args)
	default:
		return fmt.Errorf("unsupported mode: %s", e.mode)
	}
}

// GetMode returns the detected execution mode.
func (e *CommandExecutor) GetMode() helpers.Mode {
	return e.mode
}

// Fs returns the filesystem commands operate on.
func (e *CommandExecutor) Fs() afero.Fs {
	return e.fs
}

// Config returns the active configuration.
func (e *CommandExecutor) Config() *config.Config {
	return e.cfg
}

// WriteJSON writes v to the command output as indented JSON.
func (e *CommandExecutor) WriteJSON(v any) error {
	return helpers.WriteJSON(e.out, v)
}

// Printer returns a text mode printer for the command output.
func (e *CommandExecutor) Printer() *helpers.TextPrinter {
	return helpers.NewTextPrinter(e.out, e.color)
}

// ExecuteCommand is a convenience function that combines executor creation and execution.
func ExecuteCommand(cmd *cobra.Command, handlers ModeHandlers, args []string) error {
	executor := NewCommandExecutor(cmd)
	err := executor.Execute(cmd.Context(), cmd, handlers, args)
	return HandleCommonErrors(cmd, err, executor.mode, executor.color)
}

// HandleCommonErrors provides consistent error handling across all commands.
func HandleCommonErrors(cmd *cobra.Command, err error, mode helpers.Mode, color bool) error {
	if err == nil {
		return nil
	}
	if cliErr := categorizeError(err); cliErr != nil {
		err = cliErr
	}
	helpers.OutputError(cmd.ErrOrStderr(), err, mode, color)
	return helpers.MarkReported(err)
}

// categorizeError converts errors to structured CLI errors
func categorizeError(err error) *helpers.CliError {
	var cliErr *helpers.CliError
	switch {
	case errors.As(err, &cliErr):
		return cliErr
	case errors.Is(err, context.Canceled):
		return helpers.WrapCliError(helpers.CodeCanceled, "Operation was canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return helpers.WrapCliError(helpers.CodeTimeout, "Operation timed out", err)
	case errors.Is(err, solution.ErrLockTimeout):
		return helpers.WrapCliError(helpers.CodeLockTimeout, "Output file is locked by another process", err)
	case errors.Is(err, flow.ErrNotApplicable):
		return helpers.WrapCliError(helpers.CodeNotApplicable, "Flow does not need this fix", err)
	case errors.Is(err, solution.ErrAmbiguousWorkflow):
		return helpers.WrapCliError(helpers.CodeAmbiguousWorkflow, "Several workflows match; pass --workflow", err)
	case errors.Is(err, solution.ErrNoWorkflow), errors.Is(err, solution.ErrEntryNotFound),
		errors.Is(err, flow.ErrTryScopeMissing):
		return helpers.WrapCliError(helpers.CodeWorkflowNotFound, "Workflow not found", err)
	case errors.Is(err, flow.ErrInvalidJSON), errors.Is(err, flow.ErrNoActions):
		return helpers.WrapCliError(helpers.CodeInvalidInput, "Input is not a workflow definition", err)
	case errors.Is(err, fixer.ErrVerificationFailed):
		return helpers.WrapCliError(helpers.CodeVerificationFailed, "Workflow failed verification", err)
	default:
		return nil
	}
}

// ValidateRequiredFlags checks that all required flags are present and valid.
func ValidateRequiredFlags(cmd *cobra.Command, required []string) error {
	for _, flag := range required {
		if !cmd.Flags().Changed(flag) {
			return helpers.NewCliError(helpers.CodeMissingFlag, fmt.Sprintf("required flag '%s' not specified", flag))
		}
		if value, err := cmd.Flags().GetString(flag); err == nil && value == "" {
			return helpers.NewCliError(helpers.CodeMissingFlag, fmt.Sprintf("required flag '%s' cannot be empty", flag))
		}
	}
	return nil
}

// Fixer builds the patch pipeline for the active configuration.
func (e *CommandExecutor) Fixer() (*fixer.Fixer, error) {
	return fixer.New(e.fs, e.cfg)
}
