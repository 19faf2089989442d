package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	srcRoot = "/source"
	dstRoot = "/replica"
)

var errInjected = errors.New("injected failure")

// eventLog is a Recorder that keeps every event in memory
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Record(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) kinds() map[string]EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]EventKind, len(l.events))
	for _, e := range l.events {
		out[e.Path] = e.Kind
	}
	return out
}

// faultyFs fails Open and Remove for selected paths
type faultyFs struct {
	afero.Fs
	failOpen   map[string]bool
	failRemove map[string]bool
}

func newFaultyFs(base afero.Fs) *faultyFs {
	return &faultyFs{Fs: base, failOpen: map[string]bool{}, failRemove: map[string]bool{}}
}

func (f *faultyFs) Open(name string) (afero.File, error) {
	if f.failOpen[filepath.Clean(name)] {
		return nil, &os.PathError{Op: "open", Path: name, Err: errInjected}
	}
	return f.Fs.Open(name)
}

func (f *faultyFs) Remove(name string) error {
	if f.failRemove[filepath.Clean(name)] {
		return &os.PathError{Op: "remove", Path: name, Err: errInjected}
	}
	return f.Fs.Remove(name)
}

func newMemFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(srcRoot, 0o755))
	require.NoError(t, fs.MkdirAll(dstRoot, 0o755))
	return fs
}

func newTestWalker(t *testing.T, fs afero.Fs, opts ...Option) (*Walker, *eventLog) {
	t.Helper()
	events := &eventLog{}
	base := []Option{
		WithFs(fs),
		WithRecorder(events),
		WithClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))),
	}
	r, err := NewReconciler(srcRoot, dstRoot, append(base, opts...)...)
	require.NoError(t, err)
	return NewWalker(r), events
}

func writeFiles(t *testing.T, fs afero.Fs, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

// snapshot maps every relative path below root to its content; directories map to "/".
func snapshot(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			out[rel] = "/"
			return nil
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func errorPaths(rep *PassReport) []string {
	paths := make([]string, 0, len(rep.Errors))
	for _, e := range rep.Errors {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths
}
