package flow

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tidwall/sjson"
)

// Step IDs.
const (
	StepDetachNestedCatch      = "detach-nested-catch"
	StepAttachCatchSibling     = "attach-catch-sibling"
	StepInjectCatch            = "inject-catch"
	StepInjectStatusFinally    = "inject-status-finally"
	StepInjectBranchingFinally = "inject-branching-finally"
	StepReorderScopes          = "reorder-scopes"
)

// State is the mutable context shared by the steps of one patch run.
type State struct {
	Doc     *Document
	Options Options

	detachedCatch []byte
}

// Step is one named transformation of a workflow document. Apply returns a
// human readable description of what changed, or an error wrapping
// ErrNotApplicable when the document does not need it.
type Step struct {
	ID          string
	Description string
	Apply       func(st *State) (string, error)
}

var steps = []Step{
	{
		ID:          StepDetachNestedCatch,
		Description: "Remove the catch scope from inside the try scope",
		Apply:       detachNestedCatch,
	},
	{
		ID:          StepAttachCatchSibling,
		Description: "Place the detached catch scope next to the try scope and run it on failure",
		Apply:       attachCatchSibling,
	},
	{
		ID:          StepInjectCatch,
		Description: "Write the error handling catch scope at top level",
		Apply: func(st *State) (string, error) {
			return injectScope(st, st.Options.Scopes.Catch, BuildCatchScope)
		},
	},
	{
		ID:          StepInjectStatusFinally,
		Description: "Write a finally scope that completes the session when no error was flagged",
		Apply: func(st *State) (string, error) {
			return injectScope(st, st.Options.Scopes.Finally, BuildStatusFinallyScope)
		},
	},
	{
		ID:          StepInjectBranchingFinally,
		Description: "Write a finally scope that records a failed or completed session",
		Apply: func(st *State) (string, error) {
			return injectScope(st, st.Options.Scopes.Finally, BuildBranchingFinallyScope)
		},
	},
	{
		ID:          StepReorderScopes,
		Description: "Move the try, catch and finally scopes to the end of the actions",
		Apply:       reorderScopes,
	},
}

// Steps returns every registered step.
func Steps() []Step {
	return slices.Clone(steps)
}

// LookupStep returns the step registered under id.
func LookupStep(id string) (Step, error) {
	for _, s := range steps {
		if s.ID == id {
			return s, nil
		}
	}
	return Step{}, fmt.Errorf("%w: %s", ErrUnknownStep, id)
}

func detachNestedCatch(st *State) (string, error) {
	names := st.Options.Scopes
	nested, ok := st.Doc.Get(names.Try, names.Catch)
	if !ok {
		return "", ErrCatchNotNested
	}
	st.detachedCatch = []byte(nested.Raw)
	if err := st.Doc.Delete(names.Try, names.Catch); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %s from inside %s", names.Catch, names.Try), nil
}

func attachCatchSibling(st *State) (string, error) {
	names := st.Options.Scopes
	if st.detachedCatch == nil {
		return "", ErrCatchNotNested
	}
	runAfter, err := json.Marshal(After(names.Try, StatusFailed, StatusTimedOut))
	if err != nil {
		return "", err
	}
	raw, err := sjson.SetRawBytes(st.detachedCatch, "runAfter", runAfter)
	if err != nil {
		return "", fmt.Errorf("failed to rewrite runAfter of %s: %w", names.Catch, err)
	}
	if err := st.Doc.Set(raw, names.Catch); err != nil {
		return "", err
	}
	st.detachedCatch = nil
	return fmt.Sprintf("Moved %s to top level, running after %s failed or timed out", names.Catch, names.Try), nil
}

func injectScope(st *State, name string, build func(Options) (*Action, error)) (string, error) {
	scope, err := build(st.Options)
	if err != nil {
		return "", fmt.Errorf("failed to build %s: %w", name, err)
	}
	raw, err := json.Marshal(scope)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	verb := "Added"
	if st.Doc.Has(name) {
		verb = "Replaced"
	}
	if err := st.Doc.Set(raw, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s at top level", verb, name), nil
}

func reorderScopes(st *State) (string, error) {
	names := st.Options.Scopes
	if err := st.Doc.Reorder(names.Try, names.Catch, names.Finally); err != nil {
		return "", err
	}
	return fmt.Sprintf("Ordered %s, %s and %s last", names.Try, names.Catch, names.Finally), nil
}
