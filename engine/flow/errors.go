package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJSON is returned when a document is not well-formed JSON.
	ErrInvalidJSON = errors.New("workflow definition is not valid JSON")
	// ErrNoActions is returned when the actions path is missing or not an object.
	ErrNoActions = errors.New("workflow definition has no actions object")
	// ErrTryScopeMissing is returned when the try scope cannot be found.
	ErrTryScopeMissing = errors.New("try scope not found in actions")
	// ErrNotApplicable marks a step that has nothing to do on the document.
	ErrNotApplicable = errors.New("step not applicable")
	// ErrCatchNotNested is returned when the catch scope is not inside the try scope.
	ErrCatchNotNested = fmt.Errorf("%w: catch scope not found inside try scope", ErrNotApplicable)
	// ErrUnknownStrategy is returned for a strategy name that is not registered.
	ErrUnknownStrategy = errors.New("unknown fix strategy")
	// ErrUnknownStep is returned for a step id that is not registered.
	ErrUnknownStep = errors.New("unknown fix step")
)
