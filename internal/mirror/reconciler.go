package mirror

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/foldersync/internal/utils"
	"github.com/spf13/afero"
)

const (
	defaultDirPerm  os.FileMode = 0o755
	minFilePerm     os.FileMode = 0o600
	copyBufferBytes             = 128 * 1024
)

var (
	ErrOutsideReplica = errors.New("path is not strictly inside the replica root")
	ErrTypeMismatch   = errors.New("replica entry is not a regular file")
)

// config holds the collaborators shared by the Reconciler and the Walker
type config struct {
	fs       afero.Fs
	hasher   Hasher
	recorder Recorder
	ignore   *IgnoreList
	clock    clockwork.Clock
}

// Option configures a Reconciler
type Option func(*config)

// WithFs sets the filesystem both trees live on. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		c.fs = fs
	}
}

// WithHasher overrides the content fingerprinting. Defaults to BLAKE3 on the configured fs.
func WithHasher(h Hasher) Option {
	return func(c *config) {
		c.hasher = h
	}
}

// WithRecorder sets the sink receiving every replica mutation
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

// WithIgnore excludes matching paths on both sides
func WithIgnore(l *IgnoreList) Option {
	return func(c *config) {
		c.ignore = l
	}
}

// WithClock sets the clock used to timestamp events
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// Reconciler makes one directory level of the replica match the corresponding source level.
// It only ever writes below replicaRoot.
type Reconciler struct {
	config
	sourceRoot  string
	replicaRoot string
}

func NewReconciler(sourceRoot, replicaRoot string, opts ...Option) (*Reconciler, error) {
	cfg := config{
		fs:       afero.NewOsFs(),
		recorder: Discard,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.hasher == nil {
		h, err := NewHasher(cfg.fs, DefaultAlgorithm)
		if err != nil {
			return nil, err
		}
		cfg.hasher = h
	}
	if cfg.ignore == nil {
		cfg.ignore = NewIgnoreList()
	}

	if sourceRoot == "" || replicaRoot == "" {
		return nil, errors.New("source and replica roots are required")
	}
	sourceRoot = filepath.Clean(sourceRoot)
	replicaRoot = filepath.Clean(replicaRoot)
	if sourceRoot == replicaRoot || utils.IsWithin(sourceRoot, replicaRoot) || utils.IsWithin(replicaRoot, sourceRoot) {
		return nil, fmt.Errorf("source %q and replica %q must not overlap", sourceRoot, replicaRoot)
	}

	return &Reconciler{
		config:      cfg,
		sourceRoot:  sourceRoot,
		replicaRoot: replicaRoot,
	}, nil
}

func (r *Reconciler) SourceRoot() string {
	return r.sourceRoot
}

func (r *Reconciler) ReplicaRoot() string {
	return r.replicaRoot
}

// Sync creates or updates every immediate file of srcDir inside dstDir.
func (r *Reconciler) Sync(srcDir, dstDir string) *PassReport {
	rep := r.newReport()
	defer r.finish(rep)

	src, dst, ok := r.listPair(rep, srcDir, dstDir)
	if !ok {
		return rep
	}
	r.syncLevel(rep, srcDir, dstDir, src, dst)
	return rep
}

// Clean removes every immediate replica file and directory of dstDir that has no
// counterpart in srcDir. Stale directories are removed with their whole subtree.
func (r *Reconciler) Clean(srcDir, dstDir string) *PassReport {
	rep := r.newReport()
	defer r.finish(rep)

	src, dst, ok := r.listPair(rep, srcDir, dstDir)
	if !ok {
		return rep
	}
	r.cleanLevel(rep, dstDir, src, dst)
	return rep
}

// DeleteTree removes dir and everything below it. dir must be strictly inside the replica root.
func (r *Reconciler) DeleteTree(dir string) *PassReport {
	rep := r.newReport()
	defer r.finish(rep)

	r.deleteTree(rep, dir)
	return rep
}

func (r *Reconciler) newReport() *PassReport {
	return &PassReport{
		ID:      uuid.New().String(),
		Started: r.clock.Now(),
	}
}

func (r *Reconciler) finish(rep *PassReport) {
	rep.Finished = r.clock.Now()
}

// level is the immediate content of one directory, split by entry type
type level struct {
	files  mapset.Set[string]
	dirs   mapset.Set[string]
	others mapset.Set[string]
	infos  map[string]os.FileInfo
}

func (l *level) forget(name string) {
	l.files.Remove(name)
	l.dirs.Remove(name)
	l.others.Remove(name)
	delete(l.infos, name)
}

func sorted(s mapset.Set[string]) []string {
	names := s.ToSlice()
	slices.Sort(names)
	return names
}

// listLevel reads dir, dropping ignored entries. root is the tree root dir belongs to.
func (r *Reconciler) listLevel(dir, root string) (*level, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil, err
	}

	relDir, err := filepath.Rel(root, dir)
	if err != nil {
		return nil, err
	}

	lvl := &level{
		files:  mapset.NewThreadUnsafeSet[string](),
		dirs:   mapset.NewThreadUnsafeSet[string](),
		others: mapset.NewThreadUnsafeSet[string](),
		infos:  make(map[string]os.FileInfo, len(entries)),
	}
	for _, info := range entries {
		name := info.Name()
		if r.ignore.ShouldIgnore(filepath.Join(relDir, name), info.IsDir()) {
			continue
		}
		lvl.infos[name] = info
		switch mode := info.Mode(); {
		case mode.IsRegular():
			lvl.files.Add(name)
		case mode.IsDir():
			lvl.dirs.Add(name)
		default:
			lvl.others.Add(name)
		}
	}
	return lvl, nil
}

func (r *Reconciler) listPair(rep *PassReport, srcDir, dstDir string) (*level, *level, bool) {
	src, err := r.listLevel(srcDir, r.sourceRoot)
	if err != nil {
		r.fail(rep, OpReadDir, srcDir, err)
		return nil, nil, false
	}
	dst, err := r.listLevel(dstDir, r.replicaRoot)
	if err != nil {
		r.fail(rep, OpReadDir, dstDir, err)
		return nil, nil, false
	}
	return src, dst, true
}

func (r *Reconciler) syncLevel(rep *PassReport, srcDir, dstDir string, src, dst *level) {
	for _, name := range sorted(src.others) {
		path := filepath.Join(srcDir, name)
		rep.Skipped = append(rep.Skipped, path)
		slog.Warn("sync", "op", "skip", "path", path, "mode", src.infos[name].Mode().Type().String(), "reason", "not a regular file or directory")
	}

	for _, name := range sorted(src.files) {
		srcPath := filepath.Join(srcDir, name)
		dstPath := filepath.Join(dstDir, name)
		perm := src.infos[name].Mode().Perm() | minFilePerm

		switch {
		case dst.dirs.Contains(name) || dst.others.Contains(name):
			r.fail(rep, OpCopy, dstPath, ErrTypeMismatch)

		case !dst.files.Contains(name):
			n, err := r.copyFile(srcPath, dstPath, perm)
			if err != nil {
				r.fail(rep, OpCopy, dstPath, err)
				continue
			}
			rep.BytesCopied += n
			r.record(rep, CreatedFile, dstPath)

		default:
			srcSum, err := r.hasher.Fingerprint(srcPath)
			if err != nil {
				r.fail(rep, OpHash, srcPath, err)
				continue
			}
			dstSum, err := r.hasher.Fingerprint(dstPath)
			if err != nil {
				r.fail(rep, OpHash, dstPath, err)
				continue
			}
			if srcSum.Equal(dstSum) {
				continue
			}

			if err := r.fs.Remove(dstPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				r.fail(rep, OpReplace, dstPath, err)
				continue
			}
			n, err := r.copyFile(srcPath, dstPath, perm)
			if err != nil {
				r.fail(rep, OpReplace, dstPath, err)
				continue
			}
			rep.BytesCopied += n
			r.record(rep, UpdatedFile, dstPath)
		}
	}
}

func (r *Reconciler) cleanLevel(rep *PassReport, dstDir string, src, dst *level) {
	// replica-side links and special files are never synced, so they are always stale
	stale := dst.files.Difference(src.files).Union(dst.others)
	for _, name := range sorted(stale) {
		path := filepath.Join(dstDir, name)
		if err := r.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.fail(rep, OpRemove, path, err)
			continue
		}
		dst.forget(name)
		r.record(rep, RemovedFile, path)
	}

	for _, name := range sorted(dst.dirs.Difference(src.dirs)) {
		if r.deleteTree(rep, filepath.Join(dstDir, name)) {
			dst.forget(name)
		}
	}
}

// deleteTree reports whether dir was removed entirely.
func (r *Reconciler) deleteTree(rep *PassReport, dir string) bool {
	dir = filepath.Clean(dir)
	if !utils.IsWithin(r.replicaRoot, dir) {
		r.fail(rep, OpRmdir, dir, ErrOutsideReplica)
		return false
	}

	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		r.fail(rep, OpReadDir, dir, err)
		return false
	}

	var subdirs []string
	for _, info := range entries {
		path := filepath.Join(dir, info.Name())
		if info.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}
		if err := r.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.fail(rep, OpRemove, path, err)
			continue
		}
		r.record(rep, RemovedFile, path)
	}

	for _, sub := range subdirs {
		r.deleteTree(rep, sub)
	}

	// anything left behind above surfaces here as a deferred error
	if err := r.fs.Remove(dir); err != nil {
		r.fail(rep, OpRmdir, dir, err)
		return false
	}
	r.record(rep, RemovedDirectory, dir)
	return true
}

// copyFile writes a fresh copy of src at dst. dst must not exist. A partial copy is removed.
func (r *Reconciler) copyFile(src, dst string, perm os.FileMode) (int64, error) {
	in, err := r.fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := r.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, fmt.Errorf("create replica: %w", err)
	}

	n, err := io.CopyBuffer(out, in, make([]byte, copyBufferBytes))
	if err == nil {
		err = out.Close()
	} else {
		out.Close()
	}
	if err != nil {
		if rmErr := r.fs.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("sync", "op", "cleanup", "path", dst, "error", rmErr)
		}
		return 0, fmt.Errorf("copy: %w", err)
	}
	return n, nil
}

func (r *Reconciler) mkdir(rep *PassReport, dir string) bool {
	if err := r.fs.Mkdir(dir, defaultDirPerm); err != nil {
		if errors.Is(err, os.ErrExist) {
			return true
		}
		r.fail(rep, OpMkdir, dir, err)
		return false
	}
	r.record(rep, CreatedDirectory, dir)
	return true
}

func (r *Reconciler) record(rep *PassReport, kind EventKind, path string) {
	event := Event{Time: r.clock.Now(), Kind: kind, Path: path}
	rep.Events = append(rep.Events, event)
	slog.Info("sync", "op", string(kind), "path", path)
	if err := r.recorder.Record(event); err != nil {
		r.fail(rep, OpRecord, path, err)
	}
}

func (r *Reconciler) fail(rep *PassReport, op Op, path string, err error) {
	rep.fail(op, path, err)
	slog.Error("sync", "op", string(op), "path", path, "error", err)
}
