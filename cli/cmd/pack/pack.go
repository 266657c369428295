package pack

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/cli/cmd"
	"github.com/compozy/flowfix/cli/helpers"
	"github.com/compozy/flowfix/engine/fixer"
	"github.com/compozy/flowfix/engine/solution"
)

// Request describes a splice of one file into a solution copy.
type Request struct {
	Source string
	Entry  string
	File   string
	Output string
}

// NewPackCommand creates the pack command
func NewPackCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "pack",
		Short: "Replace a workflow entry in a copy of a solution zip",
		Long: `Write a copy of a solution zip where one entry holds the bytes of a local file.

Without --entry the workflow entry is found with the configured pattern.
Every other entry is copied unchanged.`,
		Args: cobra.NoArgs,
		RunE: runPack,
	}
	command.Flags().String("source", "", "Solution zip to copy")
	command.Flags().String("entry", "", "Entry name to replace (defaults to the workflow entry)")
	command.Flags().String("file", "", "File whose bytes become the entry")
	command.Flags().StringP("out", "o", "", "Path of the written zip (defaults to the source name with the package suffix)")
	return command
}

func runPack(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ModeHandlers{
		JSON: handlePackJSON,
		Text: handlePackText,
	}, args)
}

func handlePackJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	res, err := pack(ctx, cobraCmd, executor)
	if err != nil {
		return err
	}
	return executor.WriteJSON(res)
}

func handlePackText(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	res, err := pack(ctx, cobraCmd, executor)
	if err != nil {
		return err
	}
	p := executor.Printer()
	p.Success("Wrote %s", res.Output)
	for _, name := range res.Replaced {
		p.Field("replaced", name)
	}
	for _, name := range res.Appended {
		p.Field("added", name)
	}
	p.Field("entries", res.Entries)
	return nil
}

func pack(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor) (*solution.Result, error) {
	if err := cmd.ValidateRequiredFlags(cobraCmd, []string{"source", "file"}); err != nil {
		return nil, err
	}
	req := Request{}
	flags := []struct {
		name   string
		target *string
	}{
		{"source", &req.Source},
		{"entry", &req.Entry},
		{"file", &req.File},
		{"out", &req.Output},
	}
	for _, flag := range flags {
		value, err := cobraCmd.Flags().GetString(flag.name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", flag.name, err)
		}
		*flag.target = value
	}
	if req.Output == "" {
		req.Output = helpers.SuffixedPath(req.Source, executor.Config().Package.OutputSuffix)
	}
	f, err := executor.Fixer()
	if err != nil {
		return nil, err
	}
	return Run(ctx, executor.Fs(), f, req)
}

// Run writes req.Output as req.Source with req.Entry replaced by the bytes of req.File.
func Run(ctx context.Context, fs afero.Fs, f *fixer.Fixer, req Request) (*solution.Result, error) {
	data, err := afero.ReadFile(fs, req.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.File, err)
	}
	entry := req.Entry
	if entry == "" {
		entry, _, err = f.ReadWorkflow(req.Source, "")
		if err != nil {
			return nil, err
		}
	}
	return f.Splice(ctx, req.Source, req.Output, entry, data)
}
