package solution

import "errors"

var (
	// ErrEntryNotFound is returned when a named entry is not in the archive.
	ErrEntryNotFound = errors.New("entry not found in solution package")
	// ErrNoWorkflow is returned when no entry matches the workflow pattern.
	ErrNoWorkflow = errors.New("no workflow entry found in solution package")
	// ErrAmbiguousWorkflow is returned when several workflow entries qualify.
	ErrAmbiguousWorkflow = errors.New("more than one workflow entry matches")
	// ErrLockTimeout is returned when the output lock cannot be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for output lock")
	// ErrUnsafePath is returned for entry names that escape the extraction directory.
	ErrUnsafePath = errors.New("entry path escapes target directory")
)
