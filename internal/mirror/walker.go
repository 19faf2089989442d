package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"

	"github.com/openmined/foldersync/internal/utils"
)

// dirPair is one pending level of a walk
type dirPair struct {
	src string
	dst string
}

// Walker converges a whole source tree onto the replica, one directory level at a time.
type Walker struct {
	*Reconciler
}

func NewWalker(r *Reconciler) *Walker {
	return &Walker{Reconciler: r}
}

// WalkRoots walks the reconciler's source root onto its replica root.
func (w *Walker) WalkRoots(ctx context.Context) *PassReport {
	return w.Walk(ctx, w.sourceRoot, w.replicaRoot)
}

// Walk converges srcDir onto dstDir. dstDir must be the replica root or lie below it.
//
// Each level is cleaned before it is synced, so an entry that changed type (file <-> directory)
// is removed before its replacement is created and a stale directory is never descended into.
// Pending levels are kept on an explicit stack; ctx is checked before every level.
func (w *Walker) Walk(ctx context.Context, srcDir, dstDir string) *PassReport {
	rep := w.newReport()
	defer w.finish(rep)

	srcDir = filepath.Clean(srcDir)
	dstDir = filepath.Clean(dstDir)
	if dstDir != w.replicaRoot && !utils.IsWithin(w.replicaRoot, dstDir) {
		w.fail(rep, OpReadDir, dstDir, ErrOutsideReplica)
		return rep
	}

	if !w.ensureRoot(rep, dstDir) {
		return rep
	}

	stack := []dirPair{{src: srcDir, dst: dstDir}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			rep.Canceled = err
			break
		}

		pair := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children := w.walkLevel(rep, pair)
		// reversed so that siblings are visited in name order
		slices.Reverse(children)
		stack = append(stack, children...)
	}

	return rep
}

// walkLevel reconciles one level and returns the subdirectory pairs to descend into.
func (w *Walker) walkLevel(rep *PassReport, pair dirPair) []dirPair {
	src, dst, ok := w.listPair(rep, pair.src, pair.dst)
	if !ok {
		return nil
	}

	w.cleanLevel(rep, pair.dst, src, dst)
	w.syncLevel(rep, pair.src, pair.dst, src, dst)

	names := sorted(src.dirs)
	children := make([]dirPair, 0, len(names))
	for _, name := range names {
		child := dirPair{
			src: filepath.Join(pair.src, name),
			dst: filepath.Join(pair.dst, name),
		}
		if !dst.dirs.Contains(name) {
			// descent is attempted regardless; a missing replica dir is reported again as a readdir failure
			w.mkdir(rep, child.dst)
		}
		children = append(children, child)
	}
	return children
}

// ensureRoot creates the replica directory of the walk if it does not exist yet.
func (w *Walker) ensureRoot(rep *PassReport, dir string) bool {
	info, err := w.fs.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return true
	case err == nil:
		w.fail(rep, OpMkdir, dir, ErrTypeMismatch)
		return false
	case !errors.Is(err, os.ErrNotExist):
		w.fail(rep, OpMkdir, dir, err)
		return false
	}

	if err := w.fs.MkdirAll(dir, defaultDirPerm); err != nil {
		w.fail(rep, OpMkdir, dir, err)
		return false
	}
	w.record(rep, CreatedDirectory, dir)
	return true
}

