package helpers

// Mode is how a command renders its results.
type Mode string

const (
	ModeJSON Mode = "json"
	ModeText Mode = "text"
)

// OutputFormat is the value of the --format flag.
type OutputFormat string

const (
	OutputFormatAuto OutputFormat = "auto"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatText OutputFormat = "text"
)

// Error codes reported by the CLI.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeMissingFlag        = "MISSING_FLAG"
	CodeNotApplicable      = "NOT_APPLICABLE"
	CodeWorkflowNotFound   = "WORKFLOW_NOT_FOUND"
	CodeAmbiguousWorkflow  = "AMBIGUOUS_WORKFLOW"
	CodeVerificationFailed = "VERIFICATION_FAILED"
	CodeLockTimeout        = "LOCK_TIMEOUT"
	CodeConfigError        = "CONFIG_ERROR"
	CodeCanceled           = "OPERATION_CANCELED"
	CodeTimeout            = "OPERATION_TIMEOUT"
)
