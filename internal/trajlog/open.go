package trajlog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trajectory.replay/internal/fsutil"
)

// File extensions recognised by Open.
const (
	ExtTextVehicles      = ".fzp"
	ExtTextPedestrians   = ".pp"
	ExtBinaryVehicles    = ".bv"
	ExtBinaryPedestrians = ".bp"
)

// IsBinary reports whether path names a binary trajectory log.
func IsBinary(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtBinaryVehicles, ExtBinaryPedestrians:
		return true
	}
	return false
}

// IsText reports whether path names a delimited text trajectory export.
func IsText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtTextVehicles, ExtTextPedestrians:
		return true
	}
	return false
}

// BinaryPath returns the binary counterpart of a text export path
// (.fzp → .bv, .pp → .bp).
func BinaryPath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if strings.EqualFold(ext, ExtTextPedestrians) {
		return base + ExtBinaryPedestrians
	}
	return base + ExtBinaryVehicles
}

// Open loads a trajectory log, choosing the codec from the file extension.
// The report is nil for binary files.
func Open(ctx context.Context, fsys fsutil.FileSystem, path string, opts TextOptions) (*Log, *IngestReport, error) {
	switch {
	case IsBinary(path):
		l, err := ReadBinary(fsys, path, opts.Interval)
		return l, nil, err
	case IsText(path):
		f, err := fsys.Open(path)
		if err != nil {
			return nil, nil, notFound(path, err)
		}
		defer f.Close()
		if info, err := f.Stat(); err == nil && opts.Size == 0 {
			opts.Size = info.Size()
		}
		return ReadText(ctx, f, opts)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
	}
}

// Pending is a log load running on its own goroutine. Ready is closed once
// loading has finished; before that no log is visible.
type Pending struct {
	done   chan struct{}
	log    *Log
	report *IngestReport
	err    error
}

// LoadFunc performs a load; Open has this shape once its arguments are bound.
type LoadFunc func(ctx context.Context) (*Log, *IngestReport, error)

// LoadAsync starts load in a new goroutine.
func LoadAsync(ctx context.Context, load LoadFunc) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.log, p.report, p.err = load(ctx)
	}()
	return p
}

// Ready returns a channel closed when the load has finished.
func (p *Pending) Ready() <-chan struct{} { return p.done }

// Wait blocks until the load finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*Log, *IngestReport, error) {
	select {
	case <-p.done:
		return p.log, p.report, p.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrNotReady while the load
// is still running.
func (p *Pending) Result() (*Log, *IngestReport, error) {
	select {
	case <-p.done:
		return p.log, p.report, p.err
	default:
		return nil, nil, ErrNotReady
	}
}
