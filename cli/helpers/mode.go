package helpers

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/compozy/flowfix/pkg/config"
)

var ciVars = []string{
	"CI",
	"JENKINS_HOME",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"TRAVIS",
	"BUILDKITE",
	"DRONE",
	"TF_BUILD",           // Azure DevOps
	"BITBUCKET_COMMIT",   // Bitbucket Pipelines
	"CODEBUILD_BUILD_ID", // AWS CodeBuild
	"TEAMCITY_VERSION",
	"CONTINUOUS_INTEGRATION",
}

// isRunningInCI checks if we're running in a CI/CD environment
func isRunningInCI() bool {
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// isInteractiveEnvironment checks if a person is likely reading the output
func isInteractiveEnvironment() bool {
	if isRunningInCI() {
		return false
	}
	if !stdoutIsTerminal() {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}

// ModeForFormat resolves a configured format. Auto picks text on an interactive
// terminal and JSON everywhere else.
func ModeForFormat(format string) Mode {
	switch OutputFormat(format) {
	case OutputFormatJSON:
		return ModeJSON
	case OutputFormatText:
		return ModeText
	}
	if isInteractiveEnvironment() {
		return ModeText
	}
	return ModeJSON
}

// DetectMode detects the output mode from the configuration in the command context.
func DetectMode(cmd *cobra.Command) Mode {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return ModeJSON
	}
	return ModeForFormat(cfg.CLI.Format)
}

// ShouldUseColor determines if colored output should be used
func ShouldUseColor(cmd *cobra.Command) bool {
	cfg := config.FromContext(cmd.Context())
	return ColorEnabled(cfg != nil && cfg.CLI.NoColor)
}

// ColorEnabled reports whether output may be colored under the given no-color setting.
func ColorEnabled(noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isInteractiveEnvironment()
}
