// Package config holds the validated runtime settings of the foldersync daemon.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openmined/foldersync/internal/mirror"
	"github.com/openmined/foldersync/internal/utils"
)

var (
	ErrNoSource        = errors.New("source directory is required")
	ErrNoReplica       = errors.New("replica directory is required")
	ErrNoLogFile       = errors.New("log file is required")
	ErrSourceNotDir    = errors.New("source is not a directory")
	ErrRootsOverlap    = errors.New("source and replica must not contain each other")
	ErrLogInReplica    = errors.New("log file must not live inside the replica")
	ErrInvalidInterval = errors.New("interval must be a positive number of milliseconds")
)

type Config struct {
	Source     string        `json:"source" mapstructure:"source"`
	Replica    string        `json:"replica" mapstructure:"replica"`
	LogFile    string        `json:"log_file" mapstructure:"log_file"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	Hash       string        `json:"hash" mapstructure:"hash"`
	IgnoreFile string        `json:"ignore_file" mapstructure:"ignore_file"`
	DiagFile   string        `json:"diag_file" mapstructure:"diag_file"`
	Once       bool          `json:"once" mapstructure:"once"`
	Verbose    bool          `json:"verbose" mapstructure:"verbose"`
}

// Validate resolves every path to an absolute one and checks that the daemon can start.
func (c *Config) Validate() error {
	var err error

	if c.Source == "" {
		return ErrNoSource
	}
	if c.Replica == "" {
		return ErrNoReplica
	}
	if c.LogFile == "" {
		return ErrNoLogFile
	}

	if c.Source, err = utils.ResolvePath(c.Source); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Replica, err = utils.ResolvePath(c.Replica); err != nil {
		return fmt.Errorf("replica: %w", err)
	}
	if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
		return fmt.Errorf("log file: %w", err)
	}

	if !utils.DirExists(c.Source) {
		return fmt.Errorf("%w: %s", ErrSourceNotDir, c.Source)
	}
	if c.Source == c.Replica || utils.IsWithin(c.Source, c.Replica) || utils.IsWithin(c.Replica, c.Source) {
		return fmt.Errorf("%w: %s, %s", ErrRootsOverlap, c.Source, c.Replica)
	}

	// Clean would remove it on the first pass
	if utils.IsWithin(c.Replica, c.LogFile) {
		return fmt.Errorf("%w: %s", ErrLogInReplica, c.LogFile)
	}
	if utils.IsWithin(c.Source, c.LogFile) {
		slog.Warn("log file is inside the source tree, every pass will copy it", "path", c.LogFile)
	}

	if c.Interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.Interval)
	}

	if _, err := mirror.ParseAlgorithm(c.Hash); err != nil {
		return err
	}

	if c.IgnoreFile != "" {
		if c.IgnoreFile, err = utils.ResolvePath(c.IgnoreFile); err != nil {
			return fmt.Errorf("ignore file: %w", err)
		}
	}
	if c.DiagFile != "" {
		if c.DiagFile, err = utils.ResolvePath(c.DiagFile); err != nil {
			return fmt.Errorf("diag file: %w", err)
		}
		if filepath.Clean(c.DiagFile) == filepath.Clean(c.LogFile) {
			return errors.New("diagnostics file and log file must differ")
		}
	}

	return nil
}

// Algorithm returns the parsed hash algorithm. Call after Validate.
func (c *Config) Algorithm() mirror.Algorithm {
	algo, err := mirror.ParseAlgorithm(c.Hash)
	if err != nil {
		return mirror.DefaultAlgorithm
	}
	return algo
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("source", c.Source),
		slog.String("replica", c.Replica),
		slog.String("logFile", c.LogFile),
		slog.Duration("interval", c.Interval),
		slog.String("hash", string(c.Algorithm())),
		slog.String("ignoreFile", c.IgnoreFile),
		slog.Bool("once", c.Once),
	)
}
