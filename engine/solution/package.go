package solution

import (
	"fmt"
	"io"
	"path"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// DefaultWorkflowPattern matches the flow definitions of an exported solution.
const DefaultWorkflowPattern = "Workflows/*.json"

// Package is an open solution archive.
type Package struct {
	path   string
	file   afero.File
	reader *zip.Reader
	closed bool
}

// Open opens the solution archive at path on fs.
func Open(fs afero.Fs, path string) (*Package, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open solution package: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat solution package: %w", err)
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read solution package %s: %w", path, err)
	}
	return &Package{path: path, file: f, reader: r}, nil
}

// Path returns the archive location.
func (p *Package) Path() string {
	return p.path
}

// Close releases the underlying file. Closing twice is a no-op.
func (p *Package) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.file.Close()
}

// Entries returns entry names in archive order.
func (p *Package) Entries() []string {
	names := make([]string, 0, len(p.reader.File))
	for _, f := range p.reader.File {
		names = append(names, f.Name)
	}
	return names
}

// FindWorkflows returns the entries matching pattern, in archive order.
func (p *Package) FindWorkflows(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultWorkflowPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid workflow pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	var matches []string
	for _, f := range p.reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ok, err := doublestar.Match(pattern, f.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid workflow pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, f.Name)
		}
	}
	return matches, nil
}

// ResolveWorkflow picks the single workflow entry to patch. A non-empty name
// selects the entry with that full name or base name. Otherwise every entry
// matching pattern is a candidate and, when there are several, accept narrows
// them down; exactly one must remain.
func (p *Package) ResolveWorkflow(pattern, name string, accept func(data []byte) bool) (string, error) {
	candidates, err := p.FindWorkflows(pattern)
	if err != nil {
		return "", err
	}
	if name != "" {
		for _, entry := range p.Entries() {
			if entry == name || (slices.Contains(candidates, entry) && path.Base(entry) == name) {
				return entry, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: pattern %q", ErrNoWorkflow, pattern)
	case 1:
		return candidates[0], nil
	}
	if accept == nil {
		return "", fmt.Errorf("%w: %v", ErrAmbiguousWorkflow, candidates)
	}
	var accepted []string
	for _, entry := range candidates {
		data, err := p.ReadEntry(entry)
		if err != nil {
			return "", err
		}
		if accept(data) {
			accepted = append(accepted, entry)
		}
	}
	if len(accepted) != 1 {
		return "", fmt.Errorf("%w: %v", ErrAmbiguousWorkflow, candidates)
	}
	return accepted[0], nil
}

func (p *Package) entry(name string) (*zip.File, bool) {
	for _, f := range p.reader.File {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// ReadEntry returns the uncompressed bytes of the named entry.
func (p *Package) ReadEntry(name string) ([]byte, error) {
	f, ok := p.entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", name, err)
	}
	return data, nil
}
