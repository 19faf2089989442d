package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/openmined/foldersync/internal/config"
	"github.com/openmined/foldersync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FOLDERSYNC"

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "foldersync <source> <replica> <logfile> <interval-ms>",
		Short:   "Keep a replica directory identical to a source directory",
		Long:    "Periodically makes <replica> an exact copy of <source>. Every file and directory\nchange is appended to <logfile>. Passes run every <interval-ms> milliseconds.",
		Version: version.Detailed(),
		Args:    cobra.ExactArgs(4),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, err := parseInterval(args[3])
			if err != nil {
				return err
			}

			cfg := &config.Config{
				Source:     args[0],
				Replica:    args[1],
				LogFile:    args[2],
				Interval:   interval,
				Hash:       v.GetString("hash"),
				IgnoreFile: v.GetString("ignore_file"),
				DiagFile:   v.GetString("diag_file"),
				Once:       v.GetBool("once"),
				Verbose:    v.GetBool("verbose"),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// all good now, no more usage on errors
			cmd.SilenceUsage = true

			closeLog, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			showHeader(cmd, cfg)
			defer slog.Info("Bye!")
			return runDaemon(cmd.Context(), cfg)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().String("hash", "blake3", "Content hash used to compare files (blake3|md5)")
	cmd.Flags().StringP("ignore-file", "i", "", "File with gitignore-style patterns to leave out of the sync")
	cmd.Flags().Bool("once", false, "Run a single pass and exit")
	cmd.Flags().String("diag-file", "", "Also write diagnostics to this file")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Optional config file (json or yaml)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	setupBootstrapLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// parseInterval reads the positional interval as a whole number of milliseconds.
func parseInterval(raw string) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: must be a whole number of milliseconds", raw)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%w: %d", config.ErrInvalidInterval, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			enoent := errors.Is(err, os.ErrNotExist)
			var notFound viper.ConfigFileNotFoundError
			if !enoent && !errors.As(err, &notFound) {
				return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
			}
			slog.Warn("config file not found, using flags and environment", "path", path)
		}
	}

	// flag names use dashes, config keys use underscores
	for key, flag := range map[string]string{
		"hash":        "hash",
		"ignore_file": "ignore-file",
		"once":        "once",
		"diag_file":   "diag-file",
		"verbose":     "verbose",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return nil
}

func showHeader(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "%s %s\n", cyan(version.AppName), version.Short())
	fmt.Fprintf(out, "  %s %s\n", green("source "), cfg.Source)
	fmt.Fprintf(out, "  %s %s\n", green("replica"), cfg.Replica)
	fmt.Fprintf(out, "  %s %s\n", green("log    "), cfg.LogFile)
	if cfg.Once {
		fmt.Fprintf(out, "  %s\n", red("single pass"))
	} else {
		fmt.Fprintf(out, "  %s %s\n", green("every  "), cfg.Interval)
	}
}
