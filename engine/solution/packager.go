package solution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/compozy/flowfix/pkg/logger"
)

const (
	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

// Result describes a written package.
type Result struct {
	Output   string   `json:"output"`
	Replaced []string `json:"replaced"`
	Appended []string `json:"appended,omitempty"`
	Entries  int      `json:"entries"`
}

// Packager writes solution archives with some entries swapped out.
type Packager struct {
	fs          afero.Fs
	locking     bool
	lockTimeout time.Duration
}

// Option configures a Packager.
type Option func(*Packager)

// WithLocking guards the destination with a <dst>.lock file while writing.
// The lock file is removed once the write finishes.
// Locks are only taken on the OS filesystem.
func WithLocking(enabled bool) Option {
	return func(p *Packager) {
		p.locking = enabled
	}
}

// WithLockTimeout bounds how long Replace waits for the destination lock.
func WithLockTimeout(d time.Duration) Option {
	return func(p *Packager) {
		if d > 0 {
			p.lockTimeout = d
		}
	}
}

// NewPackager creates a packager working on fs.
func NewPackager(fs afero.Fs, opts ...Option) *Packager {
	p := &Packager{fs: fs, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Replace writes dst as a copy of src where the named entries carry new bytes.
// Replaced entries keep their position and modification time and are stored
// deflated; all other entries are copied without recompression. Replacements
// naming entries absent from src are appended in name order. dst may equal src.
func (p *Packager) Replace(ctx context.Context, src, dst string, replacements map[string][]byte) (*Result, error) {
	log := logger.FromContext(ctx)
	dir := filepath.Dir(dst)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	unlock, err := p.lock(ctx, dst)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pkg, err := Open(p.fs, src)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	tmp, err := afero.TempFile(p.fs, dir, "."+filepath.Base(dst)+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary package: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			if rmErr := p.fs.Remove(tmp.Name()); rmErr != nil {
				log.Debug("Failed to remove temporary package", "path", tmp.Name(), "error", rmErr)
			}
		}
	}()

	res, err := p.write(ctx, pkg, tmp, replacements)
	if err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("failed to flush temporary package: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temporary package: %w", err)
	}
	if err := pkg.Close(); err != nil {
		return nil, fmt.Errorf("failed to close source package: %w", err)
	}
	if err := p.fs.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("failed to move package into place: %w", err)
	}
	committed = true
	res.Output = dst
	log.Debug("Wrote solution package", "output", dst, "entries", res.Entries, "replaced", res.Replaced)
	return res, nil
}

func (p *Packager) write(ctx context.Context, pkg *Package, out afero.File, replacements map[string][]byte) (*Result, error) {
	w := zip.NewWriter(out)
	res := &Result{Replaced: []string{}}
	seen := make(map[string]bool, len(replacements))
	for _, f := range pkg.reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, ok := replacements[f.Name]
		if !ok {
			if err := w.Copy(f); err != nil {
				return nil, fmt.Errorf("failed to copy entry %s: %w", f.Name, err)
			}
			res.Entries++
			continue
		}
		hdr := &zip.FileHeader{
			Name:          f.Name,
			Comment:       f.Comment,
			Method:        zip.Deflate,
			Modified:      f.Modified,
			ExternalAttrs: f.ExternalAttrs,
		}
		hdr.CreatorVersion = f.CreatorVersion
		if err := writeEntry(w, hdr, data); err != nil {
			return nil, err
		}
		seen[f.Name] = true
		res.Replaced = append(res.Replaced, f.Name)
		res.Entries++
	}
	var missing []string
	for name := range replacements {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	slices.Sort(missing)
	for _, name := range missing {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
		if err := writeEntry(w, hdr, replacements[name]); err != nil {
			return nil, err
		}
		res.Appended = append(res.Appended, name)
		res.Entries++
	}
	if pkg.reader.Comment != "" {
		if err := w.SetComment(pkg.reader.Comment); err != nil {
			return nil, fmt.Errorf("failed to set archive comment: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish package: %w", err)
	}
	return res, nil
}

func writeEntry(w *zip.Writer, hdr *zip.FileHeader, data []byte) error {
	fw, err := w.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", hdr.Name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", hdr.Name, err)
	}
	return nil
}

// lock takes the destination lock when enabled. The returned func deletes the
// lock file while still holding the lock, then releases it.
func (p *Packager) lock(ctx context.Context, dst string) (func(), error) {
	if !p.locking {
		return func() {}, nil
	}
	if _, ok := p.fs.(*afero.OsFs); !ok {
		logger.FromContext(ctx).Debug("Skipping output lock on non-OS filesystem", "path", dst)
		return func() {}, nil
	}
	fl := flock.New(dst + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, p.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, fl.Path(), p.lockTimeout)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fl.Path())
	}
	return func() {
		log := logger.FromContext(ctx)
		if err := p.fs.Remove(fl.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove output lock file", "path", fl.Path(), "error", err)
		}
		if err := fl.Unlock(); err != nil {
			log.Warn("Failed to release output lock", "path", fl.Path(), "error", err)
		}
	}, nil
}
