package patch

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/cli/cmd"
	"github.com/compozy/flowfix/cli/helpers"
	"github.com/compozy/flowfix/engine/fixer"
	"github.com/compozy/flowfix/engine/flow"
	"github.com/compozy/flowfix/pkg/logger"
)

// Result is what the patch command reports.
type Result struct {
	Input        string             `json:"input"`
	Output       string             `json:"output,omitempty"`
	DryRun       bool               `json:"dry_run,omitempty"`
	Report       *flow.Report       `json:"report"`
	Verification *flow.Verification `json:"verification"`
}

// NewPatchCommand creates the patch command
func NewPatchCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "patch <flow.json>",
		Short: "Fix the error handling scopes of a flow definition file",
		Long: `Apply the configured strategy to a workflow definition file.

The result is written next to the input with the configured suffix
(Flow.json becomes Flow_FIXED.json) unless --out or --in-place is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runPatch,
	}
	command.Flags().StringP("out", "o", "", "Path of the patched file")
	command.Flags().Bool("in-place", false, "Overwrite the input file")
	command.Flags().Bool("dry-run", false, "Report the changes without writing anything")
	command.MarkFlagsMutuallyExclusive("out", "in-place")
	return command
}

func runPatch(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ModeHandlers{
		JSON: handlePatchJSON,
		Text: handlePatchText,
	}, args)
}

func handlePatchJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := patchFile(ctx, cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	return executor.WriteJSON(res)
}

func handlePatchText(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := patchFile(ctx, cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	p := executor.Printer()
	p.Title("Patched %s (%s)", res.Input, res.Report.Strategy)
	for _, change := range res.Report.Changes {
		p.Item("%s", change.Message)
	}
	for _, step := range res.Report.Skipped {
		p.Muted("  skipped %s", step)
	}
	if res.DryRun {
		p.Warning("Dry run, nothing written")
		return nil
	}
	p.Success("Wrote %s", res.Output)
	return nil
}

func patchFile(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, input string) (*Result, error) {
	output, err := outputPath(cobraCmd, executor, input)
	if err != nil {
		return nil, err
	}
	dryRun, err := cobraCmd.Flags().GetBool("dry-run")
	if err != nil {
		return nil, fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	f, err := executor.Fixer()
	if err != nil {
		return nil, err
	}
	return Run(ctx, executor.Fs(), f, input, output, dryRun)
}

func outputPath(cobraCmd *cobra.Command, executor *cmd.CommandExecutor, input string) (string, error) {
	out, err := cobraCmd.Flags().GetString("out")
	if err != nil {
		return "", fmt.Errorf("failed to get out flag: %w", err)
	}
	if out != "" {
		return out, nil
	}
	inPlace, err := cobraCmd.Flags().GetBool("in-place")
	if err != nil {
		return "", fmt.Errorf("failed to get in-place flag: %w", err)
	}
	if inPlace {
		return input, nil
	}
	return helpers.SuffixedPath(input, executor.Config().Flow.OutputSuffix), nil
}

// Run patches input and writes the result to output unless dryRun is set.
// A flow that fails verification after patching is not written.
func Run(
	ctx context.Context,
	fs afero.Fs,
	f *fixer.Fixer,
	input, output string,
	dryRun bool,
) (*Result, error) {
	log := logger.FromContext(ctx)
	data, err := afero.ReadFile(fs, input)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", input, err)
	}
	def, err := f.FixDefinition(ctx, data)
	if err != nil {
		if errors.Is(err, fixer.ErrVerificationFailed) {
			log.Warn("Patched flow failed verification", "input", input, "issues", def.Verification.Issues)
		}
		return nil, err
	}
	res := &Result{Input: input, DryRun: dryRun, Report: def.Report, Verification: def.Verification}
	if dryRun {
		return res, nil
	}
	if err := afero.WriteFile(fs, output, def.Output, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", output, err)
	}
	res.Output = output
	log.Debug("Wrote patched flow", "output", output)
	return res, nil
}
