package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/compozy/flowfix/pkg/logger"
)

// Strategy names.
const (
	StrategyRebuild  = "rebuild"
	StrategyRelocate = "relocate"
)

// StrategyStep references a registered step. Optional steps are skipped when
// they report ErrNotApplicable.
type StrategyStep struct {
	ID       string
	Optional bool
}

// Strategy is an ordered list of steps that together repair a flow.
type Strategy struct {
	Name        string
	Description string
	Steps       []StrategyStep
}

var strategies = []Strategy{
	{
		Name:        StrategyRebuild,
		Description: "Detach a nested catch if present and write canonical catch and finally scopes",
		Steps: []StrategyStep{
			{ID: StepDetachNestedCatch, Optional: true},
			{ID: StepInjectCatch},
			{ID: StepInjectStatusFinally},
		},
	},
	{
		Name:        StrategyRelocate,
		Description: "Move the nested catch next to the try scope and add a branching finally scope",
		Steps: []StrategyStep{
			{ID: StepDetachNestedCatch},
			{ID: StepAttachCatchSibling},
			{ID: StepInjectBranchingFinally},
			{ID: StepReorderScopes},
		},
	},
}

// Strategies returns every registered strategy.
func Strategies() []Strategy {
	return slices.Clone(strategies)
}

// LookupStrategy returns the strategy registered under name.
func LookupStrategy(name string) (Strategy, error) {
	for _, s := range strategies {
		if s.Name == name {
			return s, nil
		}
	}
	return Strategy{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

// Change records one modification made by a step.
type Change struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// Report summarizes a patch run.
type Report struct {
	Strategy string   `json:"strategy"`
	Changes  []Change `json:"changes"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Patcher applies a strategy to workflow documents.
type Patcher struct {
	strategy Strategy
	steps    []Step
	opts     Options
}

// NewPatcher resolves the strategy steps against the registry.
func NewPatcher(strategy Strategy, opts Options) (*Patcher, error) {
	resolved := make([]Step, 0, len(strategy.Steps))
	for _, ref := range strategy.Steps {
		step, err := LookupStep(ref.ID)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", strategy.Name, err)
		}
		resolved = append(resolved, step)
	}
	return &Patcher{strategy: strategy, steps: resolved, opts: opts}, nil
}

// Apply runs every step of the strategy against doc. The steps operate on a copy
// and doc is only updated when all of them succeed.
func (p *Patcher) Apply(ctx context.Context, doc *Document) (*Report, error) {
	log := logger.FromContext(ctx).With("strategy", p.strategy.Name)
	if !doc.Has(p.opts.Scopes.Try) {
		return nil, fmt.Errorf("%w: %s", ErrTryScopeMissing, p.opts.Scopes.Try)
	}
	st := &State{Doc: doc.Clone(), Options: p.opts}
	report := &Report{Strategy: p.strategy.Name, Changes: []Change{}}
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := step.Apply(st)
		if err != nil {
			if p.strategy.Steps[i].Optional && errors.Is(err, ErrNotApplicable) {
				log.Debug("Step skipped", "step", step.ID, "reason", err)
				report.Skipped = append(report.Skipped, step.ID)
				continue
			}
			return nil, fmt.Errorf("step %s failed: %w", step.ID, err)
		}
		log.Info(msg, "step", step.ID)
		report.Changes = append(report.Changes, Change{Step: step.ID, Message: msg})
	}
	doc.raw = st.Doc.raw
	return report, nil
}
