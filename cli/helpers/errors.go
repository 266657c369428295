package helpers

import (
	"errors"
	"fmt"
	"time"
)

// CliError represents a CLI-specific error with enhanced context
type CliError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	cause     error
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the error the CLI error was derived from, if any.
func (e *CliError) Unwrap() error {
	return e.cause
}

// NewCliError creates a new CLI error with context
func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WrapCliError creates a CLI error that keeps cause in its chain and uses it as details.
func WrapCliError(code, message string, cause error) *CliError {
	err := NewCliError(code, message)
	if cause != nil {
		err.Details = cause.Error()
		err.cause = cause
	}
	return err
}

// WithContext adds context to the error
func (e *CliError) WithContext(key string, value any) *CliError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// reportedError marks an error that has already been written to the user.
type reportedError struct {
	err error
}

func (r *reportedError) Error() string {
	return r.err.Error()
}

func (r *reportedError) Unwrap() error {
	return r.err
}

// MarkReported wraps err so the entrypoint does not print it a second time.
func MarkReported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// IsReported reports whether err was already shown to the user.
func IsReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}
