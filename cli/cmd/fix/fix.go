package fix

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/cli/cmd"
	"github.com/compozy/flowfix/cli/helpers"
	"github.com/compozy/flowfix/engine/fixer"
)

// NewFixCommand creates the fix command
func NewFixCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "fix <solution.zip>",
		Short: "Fix the workflow inside an exported solution zip",
		Long: `Find the workflow definition inside a solution zip, fix its error handling
scopes, verify the result and write a copy of the zip with only that entry
replaced.

When several entries match the workflow pattern, the one containing the Try
scope is used. Pass --workflow to pick an entry by name.`,
		Args: cobra.ExactArgs(1),
		RunE: runFix,
	}
	command.Flags().String("workflow", "", "Workflow entry name or file name inside the zip")
	command.Flags().StringP("out", "o", "", "Path of the fixed zip (defaults to the source name with the package suffix)")
	command.Flags().Bool("dry-run", false, "Report the changes without writing the zip")
	return command
}

func runFix(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ModeHandlers{
		JSON: handleFixJSON,
		Text: handleFixText,
	}, args)
}

func handleFixJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := fixPackage(ctx, cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	return executor.WriteJSON(res)
}

func handleFixText(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := fixPackage(ctx, cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	p := executor.Printer()
	p.Title("Fixed %s", res.Workflow)
	for _, change := range res.Report.Changes {
		p.Item("%s", change.Message)
	}
	p.Success("Verified Try, Catch and Finally layout")
	if res.DryRun {
		p.Warning("Dry run, nothing written")
		return nil
	}
	p.Success("Wrote %s", res.Package.Output)
	return nil
}

func fixPackage(
	ctx context.Context,
	cobraCmd *cobra.Command,
	executor *cmd.CommandExecutor,
	source string,
) (*fixer.PackageResult, error) {
	req := fixer.PackageRequest{Source: source}
	var err error
	if req.Workflow, err = cobraCmd.Flags().GetString("workflow"); err != nil {
		return nil, fmt.Errorf("failed to get workflow flag: %w", err)
	}
	if req.Output, err = cobraCmd.Flags().GetString("out"); err != nil {
		return nil, fmt.Errorf("failed to get out flag: %w", err)
	}
	if req.DryRun, err = cobraCmd.Flags().GetBool("dry-run"); err != nil {
		return nil, fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	if req.Output == "" {
		req.Output = helpers.SuffixedPath(source, executor.Config().Package.OutputSuffix)
	}
	f, err := executor.Fixer()
	if err != nil {
		return nil, err
	}
	return f.FixPackage(ctx, req)
}
