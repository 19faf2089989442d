package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/foldersync/internal/config"
	"github.com/openmined/foldersync/internal/utils"
)

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func consoleHandler(level slog.Level) slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: logTimeFormat,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
}

// setupBootstrapLogging installs the console logger used until the config is known.
func setupBootstrapLogging() {
	slog.SetDefault(slog.New(consoleHandler(slog.LevelInfo)))
}

// setupLogging installs the final logger: console, plus the diagnostics file if configured.
// The returned func flushes and closes the file.
func setupLogging(cfg *config.Config) (func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	console := consoleHandler(level)
	if cfg.DiagFile == "" {
		slog.SetDefault(slog.New(console))
		return func() {}, nil
	}

	if err := utils.EnsureParent(cfg.DiagFile); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}
	file, err := os.OpenFile(cfg.DiagFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics file: %w", err)
	}

	interceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(console, fileHandler)))
	return func() {
		interceptor.Close()
		file.Close()
	}, nil
}
