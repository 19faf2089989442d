package mirror

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Op names the filesystem operation that failed for an entry
type Op string

const (
	OpHash    Op = "hash"
	OpCopy    Op = "copy"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
	OpMkdir   Op = "mkdir"
	OpReadDir Op = "readdir"
	OpRmdir   Op = "rmdir"
	OpRecord  Op = "record"
)

// EntryError is a failure scoped to a single file or directory. It never aborts a pass.
type EntryError struct {
	Op   Op
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// PassReport collects the outcome of one Walk.
type PassReport struct {
	ID          string
	Started     time.Time
	Finished    time.Time
	Events      []Event
	Errors      []*EntryError
	BytesCopied int64
	// Skipped lists source entries that are neither regular files nor directories
	Skipped     []string
	// Canceled is set when the walk stopped early because its context was done
	Canceled    error
}

// Mutations returns the number of mutations recorded during the pass.
func (r *PassReport) Mutations() int {
	return len(r.Events)
}

// Duration of the pass
func (r *PassReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Count returns the number of recorded events of the given kind.
func (r *PassReport) Count(kind EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Err combines every entry error (and cancellation) of the pass into a single error,
// or nil if the pass completed cleanly.
func (r *PassReport) Err() error {
	var err error
	for _, e := range r.Errors {
		err = multierr.Append(err, e)
	}
	if r.Canceled != nil {
		err = multierr.Append(err, r.Canceled)
	}
	return err
}

func (r *PassReport) fail(op Op, path string, err error) {
	r.Errors = append(r.Errors, &EntryError{Op: op, Path: path, Err: err})
}
