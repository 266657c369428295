package verify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/cli/cmd"
	"github.com/compozy/flowfix/engine/fixer"
	"github.com/compozy/flowfix/engine/flow"
)

// Result is what the verify command reports.
type Result struct {
	Input    string   `json:"input"`
	Workflow string   `json:"workflow,omitempty"`
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
}

// NewVerifyCommand creates the verify command
func NewVerifyCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "verify <flow.json|solution.zip>",
		Short: "Check the Try, Catch and Finally layout of a flow",
		Long: `Check that a flow has top-level Try, Catch and Finally scopes, that the Catch
scope runs when the Try scope fails or times out, and that every runAfter
reference names an existing action. Exits non-zero when a check fails.`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}
	command.Flags().String("workflow", "", "Workflow entry name when verifying a solution zip")
	return command
}

func runVerify(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ModeHandlers{
		JSON: handleVerifyJSON,
		Text: handleVerifyText,
	}, args)
}

func handleVerifyJSON(_ context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := verify(cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	if err := executor.WriteJSON(res); err != nil {
		return err
	}
	return failure(res, displayName(res))
}

func handleVerifyText(_ context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := verify(cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	p := executor.Printer()
	name := displayName(res)
	if res.Valid {
		p.Success("%s has a valid Try, Catch and Finally layout", name)
		return nil
	}
	p.Failure("%s has %d issue(s)", name, len(res.Issues))
	for _, issue := range res.Issues {
		p.Item("%s", issue)
	}
	return failure(res, name)
}

func displayName(res *Result) string {
	if res.Workflow != "" {
		return res.Input + ":" + res.Workflow
	}
	return res.Input
}

// failure returns the error for an invalid result. The issues themselves are
// part of the command output and are not repeated in the error.
func failure(res *Result, name string) error {
	if res.Valid {
		return nil
	}
	return fmt.Errorf("%w: %d issue(s) in %s", fixer.ErrVerificationFailed, len(res.Issues), name)
}

func verify(cobraCmd *cobra.Command, executor *cmd.CommandExecutor, input string) (*Result, error) {
	workflow, err := cobraCmd.Flags().GetString("workflow")
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow flag: %w", err)
	}
	f, err := executor.Fixer()
	if err != nil {
		return nil, err
	}
	return Run(executor.Fs(), f, input, workflow)
}

// Run verifies a definition file, or the workflow inside a solution zip.
func Run(fs afero.Fs, f *fixer.Fixer, input, workflow string) (*Result, error) {
	res := &Result{Input: input}
	var verification *flow.Verification
	if strings.EqualFold(filepath.Ext(input), ".zip") {
		entry, v, err := f.VerifyPackage(input, workflow)
		if err != nil {
			return nil, err
		}
		res.Workflow = entry
		verification = v
	} else {
		data, err := afero.ReadFile(fs, input)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", input, err)
		}
		verification, err = f.VerifyDefinition(data)
		if err != nil {
			return nil, err
		}
	}
	res.Valid = verification.Valid
	res.Issues = verification.Issues
	return res, nil
}
