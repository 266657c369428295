package solution

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const extractFilePerm = 0o644

// Extract writes the named entries (all entries when names is empty) under dir
// and returns the written paths. Entry names that would land outside dir are
// rejected before anything is written.
func Extract(fs afero.Fs, pkg *Package, dir string, names []string) ([]string, error) {
	if len(names) == 0 {
		names = pkg.Entries()
	}
	root := filepath.Clean(dir)
	targets := make(map[string]string, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			continue
		}
		target, err := safeJoin(root, name)
		if err != nil {
			return nil, err
		}
		targets[name] = target
	}
	written := make([]string, 0, len(targets))
	for _, name := range names {
		target, ok := targets[name]
		if !ok {
			continue
		}
		data, err := pkg.ReadEntry(name)
		if err != nil {
			return nil, err
		}
		if err := fs.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := afero.WriteFile(fs, target, data, extractFilePerm); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
