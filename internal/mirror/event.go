package mirror

import (
	"fmt"
	"time"
)

// EventKind is the type of mutation applied to the replica
type EventKind string

const (
	CreatedFile      EventKind = "Created file"
	UpdatedFile      EventKind = "Updated file"
	RemovedFile      EventKind = "Removed file"
	CreatedDirectory EventKind = "Created directory"
	RemovedDirectory EventKind = "Removed directory"
)

// Event describes a single mutation of the replica tree.
type Event struct {
	Time time.Time
	Kind EventKind
	Path string
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

// Recorder receives every mutation applied to the replica.
type Recorder interface {
	Record(Event) error
}

// RecorderFunc adapts a function to the Recorder interface
type RecorderFunc func(Event) error

func (f RecorderFunc) Record(e Event) error {
	return f(e)
}

// Discard is a Recorder that drops all events.
var Discard Recorder = RecorderFunc(func(Event) error { return nil })
