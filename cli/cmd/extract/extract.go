package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/cli/cmd"
	"github.com/compozy/flowfix/engine/solution"
	"github.com/compozy/flowfix/pkg/logger"
)

// Result lists the files written by extract.
type Result struct {
	Source string   `json:"source"`
	Dir    string   `json:"dir"`
	Files  []string `json:"files"`
}

// NewExtractCommand creates the extract command
func NewExtractCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "extract <solution.zip>",
		Short: "Extract workflow definitions from a solution zip",
		Long: `Write the workflow entries of a solution zip into a directory, keeping their
paths inside the archive. Use --all to extract every entry.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtract,
	}
	command.Flags().StringP("dir", "d", "", "Target directory (defaults to the zip name without extension)")
	command.Flags().Bool("all", false, "Extract every entry instead of only workflows")
	return command
}

func runExtract(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ModeHandlers{
		JSON: handleExtractJSON,
		Text: handleExtractText,
	}, args)
}

func handleExtractJSON(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := extract(ctx, cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	return executor.WriteJSON(res)
}

func handleExtractText(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := extract(ctx, cobraCmd, executor, args[0])
	if err != nil {
		return err
	}
	p := executor.Printer()
	p.Success("Extracted %d file(s) into %s", len(res.Files), res.Dir)
	for _, file := range res.Files {
		p.Item("%s", file)
	}
	return nil
}

func extract(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, source string) (*Result, error) {
	dir, err := cobraCmd.Flags().GetString("dir")
	if err != nil {
		return nil, fmt.Errorf("failed to get dir flag: %w", err)
	}
	all, err := cobraCmd.Flags().GetBool("all")
	if err != nil {
		return nil, fmt.Errorf("failed to get all flag: %w", err)
	}
	if dir == "" {
		dir = strings.TrimSuffix(source, filepath.Ext(source))
	}
	pattern := executor.Config().Package.WorkflowPattern
	if all {
		pattern = ""
	}
	return Run(ctx, executor.Fs(), source, dir, pattern)
}

// Run extracts the entries of source matching pattern into dir. An empty
// pattern extracts every entry.
func Run(ctx context.Context, fs afero.Fs, source, dir, pattern string) (*Result, error) {
	pkg, err := solution.Open(fs, source)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()
	var names []string
	if pattern != "" {
		names, err = pkg.FindWorkflows(pattern)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: pattern %q", solution.ErrNoWorkflow, pattern)
		}
	}
	files, err := solution.Extract(fs, pkg, dir, names)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("Extracted solution entries", "source", source, "dir", dir, "count", len(files))
	return &Result{Source: source, Dir: dir, Files: files}, nil
}
