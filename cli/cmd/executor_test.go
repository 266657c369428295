package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/flowfix/cli/helpers"
	"github.com/compozy/flowfix/engine/fixer"
	"github.com/compozy/flowfix/engine/flow"
	"github.com/compozy/flowfix/engine/solution"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"canceled", fmt.Errorf("step: %w", context.Canceled), helpers.CodeCanceled},
		{"deadline", context.DeadlineExceeded, helpers.CodeTimeout},
		{"lock timeout", fmt.Errorf("%w: out.zip.lock", solution.ErrLockTimeout), helpers.CodeLockTimeout},
		{"catch not nested", fmt.Errorf("step detach-nested-catch failed: %w", flow.ErrCatchNotNested), helpers.CodeNotApplicable},
		{"ambiguous", solution.ErrAmbiguousWorkflow, helpers.CodeAmbiguousWorkflow},
		{"no workflow", solution.ErrNoWorkflow, helpers.CodeWorkflowNotFound},
		{"missing try", flow.ErrTryScopeMissing, helpers.CodeWorkflowNotFound},
		{"bad json", flow.ErrInvalidJSON, helpers.CodeInvalidInput},
		{"verification", fixer.ErrVerificationFailed, helpers.CodeVerificationFailed},
		{"cli error", helpers.NewCliError(helpers.CodeMissingFlag, "missing"), helpers.CodeMissingFlag},
	}
	for _, tt := range tests {
		t.Run("Should map "+tt.name, func(t *testing.T) {
			cliErr := categorizeError(tt.err)

			require.NotNil(t, cliErr)
			assert.Equal(t, tt.code, cliErr.Code)
			assert.ErrorIs(t, cliErr, tt.err)
		})
	}

	t.Run("Should leave unknown errors uncategorized", func(t *testing.T) {
		assert.Nil(t, categorizeError(errors.New("boom")))
	})
}

func TestHandleCommonErrors(t *testing.T) {
	t.Run("Should print the error and mark it reported", func(t *testing.T) {
		var stderr bytes.Buffer
		command := &cobra.Command{}
		command.SetErr(&stderr)

		err := HandleCommonErrors(command, solution.ErrNoWorkflow, helpers.ModeJSON, false)

		require.Error(t, err)
		assert.True(t, helpers.IsReported(err))
		assert.Contains(t, stderr.String(), `"code": "WORKFLOW_NOT_FOUND"`)
	})

	t.Run("Should pass nil through", func(t *testing.T) {
		assert.NoError(t, HandleCommonErrors(&cobra.Command{}, nil, helpers.ModeJSON, false))
	})
}

func TestValidateRequiredFlags(t *testing.T) {
	newCommand := func() *cobra.Command {
		command := &cobra.Command{}
		command.Flags().String("source", "", "")
		return command
	}

	t.Run("Should fail when a flag is not set", func(t *testing.T) {
		err := ValidateRequiredFlags(newCommand(), []string{"source"})

		var cliErr *helpers.CliError
		require.ErrorAs(t, err, &cliErr)
		assert.Equal(t, helpers.CodeMissingFlag, cliErr.Code)
	})

	t.Run("Should fail when a flag is empty", func(t *testing.T) {
		command := newCommand()
		require.NoError(t, command.Flags().Set("source", ""))

		assert.Error(t, ValidateRequiredFlags(command, []string{"source"}))
	})

	t.Run("Should pass when the flag has a value", func(t *testing.T) {
		command := newCommand()
		require.NoError(t, command.Flags().Set("source", "s.zip"))

		assert.NoError(t, ValidateRequiredFlags(command, []string{"source"}))
	})
}
