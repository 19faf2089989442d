// Package syncloop drives repeated synchronization passes on a fixed interval.
package syncloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/foldersync/internal/mirror"
)

var (
	ErrPassRunning     = errors.New("sync pass already running")
	ErrInvalidInterval = errors.New("sync interval must be positive")
)

// Walker runs one full pass over the configured trees
type Walker interface {
	WalkRoots(ctx context.Context) *mirror.PassReport
}

// PassHook is called after every pass with its report
type PassHook func(*mirror.PassReport)

// Option configures a Runner
type Option func(*Runner)

// WithClock sets the clock driving the interval timer
func WithClock(clock clockwork.Clock) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

// WithPassHook registers fn to be called after every pass
func WithPassHook(fn PassHook) Option {
	return func(r *Runner) {
		r.hooks = append(r.hooks, fn)
	}
}

type Runner struct {
	walker   Walker
	interval time.Duration
	clock    clockwork.Clock
	status   *Status
	hooks    []PassHook
	muPass   sync.Mutex
}

func New(walker Walker, interval time.Duration, opts ...Option) (*Runner, error) {
	if walker == nil {
		return nil, errors.New("walker is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	r := &Runner{
		walker:   walker,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		status:   NewStatus(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Status returns the failure tracker shared across passes
func (r *Runner) Status() *Status {
	return r.status
}

// Run performs a pass, waits for the interval, and repeats until ctx is done.
// It returns ctx.Err() once canceled.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("sync loop start", "interval", r.interval)
	defer slog.Info("sync loop stop")

	// a timer rather than a ticker: a slow pass must not queue up ticks behind it
	var timer clockwork.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrPassRunning) {
			return err
		}

		if timer == nil {
			timer = r.clock.NewTimer(r.interval)
		} else {
			timer.Reset(r.interval)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}

// RunOnce performs a single pass. Entry failures are reported through the returned
// PassReport and the log; the error is only set when no pass could run at all.
func (r *Runner) RunOnce(ctx context.Context) (*mirror.PassReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.muPass.TryLock() {
		return nil, ErrPassRunning
	}
	defer r.muPass.Unlock()

	rep := r.walker.WalkRoots(ctx)
	r.status.Update(rep)
	logReport(rep)

	for _, hook := range r.hooks {
		hook(rep)
	}

	if rep.Canceled != nil {
		return rep, rep.Canceled
	}
	return rep, nil
}

func logReport(rep *mirror.PassReport) {
	attrs := []any{
		"id", rep.ID,
		"createdFiles", rep.Count(mirror.CreatedFile),
		"updatedFiles", rep.Count(mirror.UpdatedFile),
		"removedFiles", rep.Count(mirror.RemovedFile),
		"createdDirs", rep.Count(mirror.CreatedDirectory),
		"removedDirs", rep.Count(mirror.RemovedDirectory),
		"errors", len(rep.Errors),
		"skipped", len(rep.Skipped),
		"copied", humanize.Bytes(uint64(rep.BytesCopied)),
		"tsTotal", rep.Duration(),
	}

	switch {
	case len(rep.Errors) > 0:
		slog.Warn("sync pass", attrs...)
	case rep.Mutations() > 0:
		slog.Info("sync pass", attrs...)
	default:
		slog.Debug("sync pass", attrs...)
	}
}
