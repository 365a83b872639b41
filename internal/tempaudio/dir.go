// Package tempaudio owns the scratch directory that synthesized audio passes
// through on its way to the output device.
package tempaudio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTempFile is reported when a temp file cannot be created or written.
var ErrTempFile = errors.New("temp audio file error")

// Handle names one artifact file inside a Dir.
type Handle struct {
	Path string
}

type Option func(*Dir)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *Dir) { d.retry = p.normalized() }
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Dir) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(d *Dir) {
		if log != nil {
			d.log = log
		}
	}
}

// WithLeakHook is called once for every file that could not be deleted.
func WithLeakHook(fn func(path string)) Option {
	return func(d *Dir) { d.onLeak = fn }
}

// Dir is a uniquely named directory created at construction and removed,
// with everything in it, by Close.
type Dir struct {
	fs     FS
	path   string
	prefix string
	retry  RetryPolicy
	sleep  func(time.Duration)
	log    *slog.Logger
	onLeak func(string)

	mu     sync.Mutex
	closed bool
}

// New creates a directory under base (the system temp dir when empty) whose
// name starts with prefix.
func New(fsys FS, base, prefix string, opts ...Option) (*Dir, error) {
	if fsys == nil {
		fsys = OS{}
	}
	d := &Dir{
		fs:     fsys,
		prefix: prefix,
		retry:  DefaultRetryPolicy(),
		sleep:  time.Sleep,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(slog.String("component", "tempaudio"))

	path, err := fsys.MkdirTemp(base, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrTempFile, err)
	}
	d.path = path
	return d, nil
}

func (d *Dir) Path() string { return d.path }

// Create writes data to a new file named <prefix><uuid>.<ext>.
func (d *Dir) Create(data []byte, ext string) (Handle, error) {
	if err := d.checkOpen(); err != nil {
		return Handle{}, err
	}
	name := d.newBase() + "." + normalizeExt(ext)
	if err := d.fs.WriteFile(name, data); err != nil {
		return Handle{}, fmt.Errorf("%w: write %s: %w", ErrTempFile, name, err)
	}
	return Handle{Path: name}, nil
}

// CreateFrom lets fill write the artifact straight into a new file and name
// its format afterwards. The file is written as <prefix><uuid>.part and then
// renamed to carry the returned extension. An error from fill is returned
// unchanged; the partial file is released on every failure, panics included.
func (d *Dir) CreateFrom(fill func(w io.Writer) (ext string, err error)) (Handle, error) {
	if err := d.checkOpen(); err != nil {
		return Handle{}, err
	}
	base := d.newBase()
	part := Handle{Path: base + ".part"}
	f, err := d.fs.Create(part.Path)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: create %s: %w", ErrTempFile, part.Path, err)
	}
	closed, done := false, false
	defer func() {
		if done {
			return
		}
		if !closed {
			_ = f.Close()
		}
		d.Release(part)
	}()

	ext, err := fill(f)
	if err != nil {
		return Handle{}, err
	}
	closed = true
	if err := f.Close(); err != nil {
		return Handle{}, fmt.Errorf("%w: write %s: %w", ErrTempFile, part.Path, err)
	}
	name := base + "." + normalizeExt(ext)
	if err := d.fs.Rename(part.Path, name); err != nil {
		return Handle{}, fmt.Errorf("%w: rename %s: %w", ErrTempFile, part.Path, err)
	}
	done = true
	return Handle{Path: name}, nil
}

func (d *Dir) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%w: directory removed", ErrTempFile)
	}
	return nil
}

func (d *Dir) newBase() string {
	return filepath.Join(d.path, d.prefix+uuid.NewString())
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "bin"
	}
	return ext
}

// Release deletes the handle's file following the retry policy. A file that is
// already gone counts as deleted. When every attempt fails the leak is logged
// and false is returned; the error never reaches the caller.
func (d *Dir) Release(h Handle) bool {
	if h.Path == "" {
		return true
	}
	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		err := d.fs.Remove(h.Path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return true
		}
		lastErr = err
		d.log.Debug("temp file delete failed",
			slog.String("path", h.Path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if attempt < d.retry.MaxAttempts {
			d.sleep(d.retry.Backoff(attempt))
		}
	}
	d.log.Warn("temp file leaked",
		slog.String("path", h.Path),
		slog.Int("attempts", d.retry.MaxAttempts),
		slog.String("error", lastErr.Error()))
	if d.onLeak != nil {
		d.onLeak(h.Path)
	}
	return false
}

// Close removes the directory tree. Calling it again is a no-op.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.fs.RemoveAll(d.path); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrTempFile, d.path, err)
	}
	return nil
}
