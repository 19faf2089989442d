package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/foldersync/internal/changelog"
	"github.com/openmined/foldersync/internal/config"
	"github.com/openmined/foldersync/internal/mirror"
	"github.com/openmined/foldersync/internal/syncloop"
	"github.com/spf13/afero"
)

// runDaemon wires the changelog, reconciler and runner together and blocks until
// ctx is done, or after a single pass when cfg.Once is set.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	fs := afero.NewOsFs()

	ignore, err := mirror.LoadIgnoreList(fs, cfg.IgnoreFile)
	if err != nil {
		return err
	}

	hasher, err := mirror.NewHasher(fs, cfg.Algorithm())
	if err != nil {
		return err
	}

	changes, err := changelog.Open(cfg.LogFile)
	if err != nil {
		return err
	}
	defer changes.Close()

	reconciler, err := mirror.NewReconciler(cfg.Source, cfg.Replica,
		mirror.WithFs(fs),
		mirror.WithHasher(hasher),
		mirror.WithRecorder(changes),
		mirror.WithIgnore(ignore),
	)
	if err != nil {
		return err
	}

	runner, err := syncloop.New(mirror.NewWalker(reconciler), cfg.Interval)
	if err != nil {
		return err
	}

	if err := changes.Note("Starting sync"); err != nil {
		slog.Warn("changelog write failed", "error", err)
	}
	slog.Info("sync start", "config", cfg, "ignoreRules", ignore.Rules())

	if cfg.Once {
		rep, err := runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		if n := len(rep.Errors); n > 0 {
			return fmt.Errorf("pass finished with %d errors", n)
		}
		return nil
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	total, failed := runner.Status().Passes()
	slog.Info("sync stop", "passes", total, "failedPasses", failed, "failingPaths", len(runner.Status().GetFailing()))
	return nil
}
