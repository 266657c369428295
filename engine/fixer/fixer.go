package fixer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/compozy/flowfix/engine/flow"
	"github.com/compozy/flowfix/engine/solution"
	"github.com/compozy/flowfix/pkg/config"
	"github.com/compozy/flowfix/pkg/logger"
)

// ErrVerificationFailed is returned when a patched flow does not pass the layout check.
var ErrVerificationFailed = errors.New("workflow verification failed")

// Fixer runs the patch and verify pipeline over flow definitions and solution packages.
type Fixer struct {
	fs       afero.Fs
	cfg      *config.Config
	opts     flow.Options
	patcher  *flow.Patcher
	packager *solution.Packager
}

// New creates a fixer for the configured strategy.
func New(fs afero.Fs, cfg *config.Config) (*Fixer, error) {
	strategy, err := flow.LookupStrategy(cfg.Flow.Strategy)
	if err != nil {
		return nil, err
	}
	opts := flow.OptionsFromConfig(cfg)
	patcher, err := flow.NewPatcher(strategy, opts)
	if err != nil {
		return nil, err
	}
	packager := solution.NewPackager(fs,
		solution.WithLocking(cfg.Package.Lock),
		solution.WithLockTimeout(cfg.Package.LockTimeout),
	)
	return &Fixer{fs: fs, cfg: cfg, opts: opts, patcher: patcher, packager: packager}, nil
}

// DefinitionResult is the outcome of fixing one workflow definition.
type DefinitionResult struct {
	Report       *flow.Report       `json:"report"`
	Verification *flow.Verification `json:"verification"`
	Output       []byte             `json:"-"`
}

// FixDefinition patches a workflow definition and verifies the result.
// The patched bytes are returned even when verification fails.
func (f *Fixer) FixDefinition(ctx context.Context, data []byte) (*DefinitionResult, error) {
	doc, err := flow.Parse(data, f.cfg.Flow.ActionsPath)
	if err != nil {
		return nil, err
	}
	report, err := f.patcher.Apply(ctx, doc)
	if err != nil {
		return nil, err
	}
	verification, err := flow.Verify(doc, f.opts.Scopes)
	if err != nil {
		return nil, err
	}
	res := &DefinitionResult{Report: report, Verification: verification, Output: doc.Bytes()}
	if !verification.Valid {
		return res, fmt.Errorf("%w: %v", ErrVerificationFailed, verification.Issues)
	}
	return res, nil
}

// VerifyDefinition runs the layout check on a definition without changing it.
func (f *Fixer) VerifyDefinition(data []byte) (*flow.Verification, error) {
	doc, err := flow.Parse(data, f.cfg.Flow.ActionsPath)
	if err != nil {
		return nil, err
	}
	return flow.Verify(doc, f.opts.Scopes)
}

// PackageRequest selects a workflow inside a solution and where to write the fixed copy.
type PackageRequest struct {
	Source   string
	Output   string
	Workflow string
	DryRun   bool
}

// PackageResult is the outcome of fixing a solution package.
type PackageResult struct {
	Workflow     string             `json:"workflow"`
	Report       *flow.Report       `json:"report"`
	Verification *flow.Verification `json:"verification"`
	Package      *solution.Result   `json:"package,omitempty"`
	DryRun       bool               `json:"dry_run,omitempty"`
}

// FixPackage finds the workflow in req.Source, fixes it and writes req.Output with
// only that entry replaced. Nothing is written on a dry run or when verification fails.
func (f *Fixer) FixPackage(ctx context.Context, req PackageRequest) (*PackageResult, error) {
	log := logger.FromContext(ctx)
	entry, data, err := f.ReadWorkflow(req.Source, req.Workflow)
	if err != nil {
		return nil, err
	}
	log.Debug("Resolved workflow entry", "package", req.Source, "entry", entry)
	def, err := f.FixDefinition(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to fix %s: %w", entry, err)
	}
	res := &PackageResult{
		Workflow:     entry,
		Report:       def.Report,
		Verification: def.Verification,
		DryRun:       req.DryRun,
	}
	if req.DryRun {
		return res, nil
	}
	written, err := f.packager.Replace(ctx, req.Source, req.Output, map[string][]byte{entry: def.Output})
	if err != nil {
		return nil, err
	}
	res.Package = written
	log.Info("Wrote fixed solution", "output", written.Output, "workflow", entry)
	return res, nil
}

// VerifyPackage runs the layout check on a workflow inside a solution.
func (f *Fixer) VerifyPackage(source, workflow string) (string, *flow.Verification, error) {
	entry, data, err := f.ReadWorkflow(source, workflow)
	if err != nil {
		return "", nil, err
	}
	verification, err := f.VerifyDefinition(data)
	if err != nil {
		return "", nil, fmt.Errorf("failed to verify %s: %w", entry, err)
	}
	return entry, verification, nil
}

// ReadWorkflow resolves the workflow entry of a solution and returns its bytes.
// With several candidates, the one holding the Try scope wins.
func (f *Fixer) ReadWorkflow(source, workflow string) (string, []byte, error) {
	pkg, err := solution.Open(f.fs, source)
	if err != nil {
		return "", nil, err
	}
	defer pkg.Close()
	entry, err := pkg.ResolveWorkflow(f.cfg.Package.WorkflowPattern, workflow, f.hasTryScope)
	if err != nil {
		return "", nil, err
	}
	data, err := pkg.ReadEntry(entry)
	if err != nil {
		return "", nil, err
	}
	return entry, data, nil
}

// Splice writes output as a copy of source with entry replaced by data.
func (f *Fixer) Splice(ctx context.Context, source, output, entry string, data []byte) (*solution.Result, error) {
	return f.packager.Replace(ctx, source, output, map[string][]byte{entry: data})
}

func (f *Fixer) hasTryScope(data []byte) bool {
	doc, err := flow.Parse(data, f.cfg.Flow.ActionsPath)
	if err != nil {
		return false
	}
	return doc.Has(f.opts.Scopes.Try)
}
