// Package changelog writes the append-only, human-readable record of every
// mutation foldersync applies to a replica.
package changelog

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/foldersync/internal/mirror"
	"github.com/openmined/foldersync/internal/utils"
)

const (
	// TimeFormat is the timestamp layout at the start of every line
	TimeFormat = "2006-01-02 15:04:05"

	LogFilePermission = 0o644
	lockSuffix        = ".lock"
)

var (
	ErrLocked = errors.New("changelog is in use by another process")
	ErrClosed = errors.New("changelog closed")
)

type options struct {
	clock clockwork.Clock
	lock  bool
}

// Option configures a Writer
type Option func(*options)

// WithClock sets the clock used to stamp free-form notes
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithoutLock skips the advisory lock file
func WithoutLock() Option {
	return func(o *options) {
		o.lock = false
	}
}

// Writer appends one line per event:
//
//	<timestamp> - <verb>: <path>
type Writer struct {
	path  string
	file  *os.File
	flock *flock.Flock
	clock clockwork.Clock
	mu    sync.Mutex
}

var _ mirror.Recorder = (*Writer)(nil)

// Open creates path (and its parent directories) if needed and opens it for appending.
// Unless WithoutLock is given it also takes an exclusive lock on "<path>.lock".
func Open(path string, opts ...Option) (*Writer, error) {
	o := &options{
		clock: clockwork.NewRealClock(),
		lock:  true,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &Writer{path: path, clock: o.clock}
	if o.lock {
		w.flock = flock.New(path + lockSuffix)
		locked, err := w.flock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock changelog: %w", err)
		}
		if !locked {
			return nil, ErrLocked
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, LogFilePermission)
	if err != nil {
		w.unlock()
		return nil, fmt.Errorf("failed to open changelog: %w", err)
	}
	w.file = file
	return w, nil
}

// Path of the log file
func (w *Writer) Path() string {
	return w.path
}

// Record appends the line for e.
func (w *Writer) Record(e mirror.Event) error {
	return w.writeLine(Format(e))
}

// Note appends a free-form line stamped with the current time, e.g. "Starting sync".
func (w *Writer) Note(message string) error {
	return w.writeLine(fmt.Sprintf("%s - %s", w.clock.Now().Format(TimeFormat), message))
}

func (w *Writer) writeLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write changelog entry: %w", err)
	}
	return nil
}

// Close closes the file and releases the lock. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	return errors.Join(err, w.unlock())
}

func (w *Writer) unlock() error {
	if w.flock == nil || !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock changelog: %w", err)
	}
	if err := os.Remove(w.flock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove changelog lock: %w", err)
	}
	return nil
}

// Format renders e as a changelog line without the trailing newline.
func Format(e mirror.Event) string {
	return fmt.Sprintf("%s - %s: %s", e.Time.Format(TimeFormat), e.Kind, e.Path)
}
