// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
	"github.com/mirrorsync/mirrorsync/pkg/lfs"
	"github.com/mirrorsync/mirrorsync/pkg/log"
	"github.com/mirrorsync/mirrorsync/pkg/mirror"
	"github.com/mirrorsync/mirrorsync/pkg/ts"
	"github.com/mirrorsync/mirrorsync/pkg/watch"
)

const (
	MirrorSyncVersion = "0.0.1"
)

// Debug Flag
const (
	flagDebug = "debug"
)

// Log Flags
const (
	flagLogPath    = "log-path"
	flagLogPerm    = "log-perm"
	flagTimeLayout = "time-layout"
	flagTimeZone   = "time-zone"
)

// Sync Flags
const (
	flagCreateReplica = "create-replica"
)

// Run Flags
const (
	flagInterval      = "interval"
	flagWatch         = "watch"
	flagWatchDebounce = "watch-debounce"
)

// Run Defaults
const (
	DefaultInterval      = 30 * time.Second
	MinimumInterval      = time.Second
	DefaultWatchDebounce = 500 * time.Millisecond
)

func initDebugFlags(flag *pflag.FlagSet) {
	flag.BoolP(flagDebug, "d", false, "print debug messages")
}

func initLogFlags(flag *pflag.FlagSet) {
	flag.String(flagLogPath, "-", "path to the operation log file.  Operations are always printed to stdout; a path appends them to a file as well.")
	flag.String(flagLogPerm, "0600", "file permissions for operation log file as unix file mode.")
	flag.StringP(flagTimeLayout, "t", "Default", "the layout to use for log timestamps.  Use go layout format, or the name of a layout.  Use mirrorsync layouts to show all named layouts.")
	flag.StringP(flagTimeZone, "z", "Local", "the timezone to use for log timestamps")
}

func initSyncFlags(flag *pflag.FlagSet) {
	flag.BoolP(flagCreateReplica, "p", false, "create the replica directory if it does not exist")
}

func initRunFlags(flag *pflag.FlagSet) {
	flag.DurationP(flagInterval, "i", DefaultInterval, "interval between synchronization passes")
	flag.BoolP(flagWatch, "w", false, "also trigger a pass when the source tree changes")
	flag.Duration(flagWatchDebounce, DefaultWatchDebounce, "quiet window used to coalesce bursts of source changes into one pass")
}

func initSyncCommandFlags(flag *pflag.FlagSet) {
	initDebugFlags(flag)
	initSyncFlags(flag)
	initLogFlags(flag)
}

func initRunCommandFlags(flag *pflag.FlagSet) {
	initDebugFlags(flag)
	initSyncFlags(flag)
	initRunFlags(flag)
	initLogFlags(flag)
}

func initViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	err := v.BindPFlags(cmd.Flags())
	if err != nil {
		return v, fmt.Errorf("error binding flag set to viper: %w", err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv() // set environment variables to overwrite config
	return v, nil
}

func checkLogConfig(v *viper.Viper, args []string) error {
	logPath := v.GetString(flagLogPath)
	if len(logPath) == 0 {
		return fmt.Errorf("log path is missing")
	}
	logPerm := v.GetString(flagLogPerm)
	if len(logPerm) == 0 {
		return fmt.Errorf("log perm is missing")
	}
	_, err := strconv.ParseUint(logPerm, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid format for log perm: %s", logPerm)
	}
	if _, err := ts.ParseLocation(v.GetString(flagTimeZone)); err != nil {
		return fmt.Errorf("error parsing time zone location %q: %w", v.GetString(flagTimeZone), err)
	}
	return nil
}

func checkSyncConfig(v *viper.Viper, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expecting 2 positional arguments for source and replica, but found %d arguments", len(args))
	}

	sourceAbsolutePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("error creating absolute path for source: %q", args[0])
	}
	replicaAbsolutePath, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("error creating absolute path for replica: %q", args[1])
	}

	// check that source and replica must be different and neither contains the other
	if err := lfs.Check(sourceAbsolutePath, replicaAbsolutePath); err != nil {
		return err
	}

	if err := checkLogConfig(v, args); err != nil {
		return fmt.Errorf("error with log configuration: %w", err)
	}
	return nil
}

func checkRunConfig(v *viper.Viper, args []string) error {
	if err := checkSyncConfig(v, args); err != nil {
		return err
	}
	if interval := v.GetDuration(flagInterval); interval < MinimumInterval {
		return fmt.Errorf(
			"%q value %q is invalid, expecting value greater than or equal to %q",
			flagInterval,
			interval,
			MinimumInterval)
	}
	if debounce := v.GetDuration(flagWatchDebounce); debounce <= 0 {
		return fmt.Errorf("%q must be positive", flagWatchDebounce)
	}
	return nil
}

func initDiagnosticLogger(debug bool) fs.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:   level,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	})
	return log.NewDiagnosticLogger(slog.New(handler))
}

func initOperationLog(path string, perm string, layout ts.Layout, location *time.Location) (fs.OperationLogger, error) {

	if path == os.DevNull {
		return log.NewOperationLog(io.Discard, layout, location), nil
	}

	if path == "-" {
		return log.NewOperationLog(os.Stdout, layout, location), nil
	}

	fileMode := os.FileMode(0600)

	if len(perm) > 0 {
		fm, err := strconv.ParseUint(perm, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("error parsing file permissions for log file from %q", perm)
		}
		fileMode = os.FileMode(fm)
	}

	if parent := lfs.Dir(path); parent != "." {
		if err := os.MkdirAll(parent, 0700); err != nil {
			return nil, fmt.Errorf("error creating parent directory for log file %q: %w", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, fmt.Errorf("error opening log file %q: %w", path, err)
	}

	// operations go to the console and the log file
	return log.NewOperationLog(io.MultiWriter(os.Stdout, f), layout, location), nil
}

// initPassInput resolves the positional arguments into a source (read-only)
// and replica filesystem pair and wires up both loggers.
func initPassInput(v *viper.Viper, args []string) (*mirror.PassInput, fs.Logger, error) {

	diagnostics := initDiagnosticLogger(v.GetBool(flagDebug))

	layout := ts.ParseLayout(v.GetString(flagTimeLayout))
	location, err := ts.ParseLocation(v.GetString(flagTimeZone))
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing time zone location %q: %w", v.GetString(flagTimeZone), err)
	}

	operations, err := initOperationLog(v.GetString(flagLogPath), v.GetString(flagLogPerm), layout, location)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing operation log: %w", err)
	}

	sourceAbsolutePath, err := filepath.Abs(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("error creating absolute path for source: %q", args[0])
	}
	replicaAbsolutePath, err := filepath.Abs(args[1])
	if err != nil {
		return nil, nil, fmt.Errorf("error creating absolute path for replica: %q", args[1])
	}

	if _, err := os.Stat(sourceAbsolutePath); err != nil {
		return nil, nil, fmt.Errorf("source does not exist %q: %w", args[0], err)
	}

	if _, err := os.Stat(replicaAbsolutePath); err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("error stating replica %q: %w", args[1], err)
		}
		if !v.GetBool(flagCreateReplica) {
			return nil, nil, fmt.Errorf("replica directory does not exist and %q is false: %q", flagCreateReplica, args[1])
		}
		if err := os.MkdirAll(replicaAbsolutePath, 0755); err != nil {
			return nil, nil, fmt.Errorf("error creating replica directory %q: %w", args[1], err)
		}
	}

	input := &mirror.PassInput{
		Source:            "/",
		SourceFileSystem:  lfs.NewReadOnlyLocalFileSystem(sourceAbsolutePath),
		Replica:           "/",
		ReplicaFileSystem: lfs.NewLocalFileSystem(replicaAbsolutePath),
		Operations:        operations,
		Logger:            nil,
	}
	if v.GetBool(flagDebug) {
		input.Logger = diagnostics
	}

	return input, diagnostics, nil
}

func main() {
	rootCommand := &cobra.Command{
		Use:                   `mirrorsync [flags]`,
		DisableFlagsInUseLine: true,
		Short: strings.Join([]string{
			"mirrorsync is a simple command line program that maintains an exact copy of a source directory at a replica directory.",
			"mirrorsync sync runs a single synchronization pass.",
			"mirrorsync run repeats the pass on a fixed interval until interrupted.",
			"Every mutation performed on the replica is logged.",
		}, "\n"),
	}

	layoutsCommand := &cobra.Command{
		Use:                   `layouts`,
		DisableFlagsInUseLine: true,
		Short:                 "show supported timestamp layouts",
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(ts.NamedLayouts))
			for name := range ts.NamedLayouts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%s: %s\n", name, ts.NamedLayouts[name])
			}
			return nil
		},
	}

	syncCommand := &cobra.Command{
		Use:                   "sync SOURCE REPLICA",
		DisableFlagsInUseLine: true,
		Short:                 "sync",
		Long:                  "run one synchronization pass, making REPLICA an exact copy of SOURCE",
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {

			ctx := cmd.Context()

			v, err := initViper(cmd)
			if err != nil {
				return fmt.Errorf("error initializing viper: %w", err)
			}

			if errConfig := checkSyncConfig(v, args); errConfig != nil {
				return errConfig
			}

			input, diagnostics, err := initPassInput(v, args)
			if err != nil {
				return err
			}

			count, err := mirror.Pass(ctx, input)
			if err != nil {
				_ = diagnostics.Log("Error synchronizing", map[string]interface{}{
					"source":  args[0],
					"replica": args[1],
					"err":     err.Error(),
				})
				os.Exit(1)
			}

			_ = diagnostics.Log("Done synchronizing", map[string]interface{}{
				"source":     args[0],
				"replica":    args[1],
				"operations": count,
			})

			return nil
		},
	}
	initSyncCommandFlags(syncCommand.Flags())

	runCommand := &cobra.Command{
		Use:                   "run SOURCE REPLICA",
		DisableFlagsInUseLine: true,
		Short:                 "run",
		Long:                  "synchronize SOURCE to REPLICA on a fixed interval until interrupted",
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {

			v, err := initViper(cmd)
			if err != nil {
				return fmt.Errorf("error initializing viper: %w", err)
			}

			if errConfig := checkRunConfig(v, args); errConfig != nil {
				return errConfig
			}

			input, diagnostics, err := initPassInput(v, args)
			if err != nil {
				return err
			}

			interval := v.GetDuration(flagInterval)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// a nil triggers channel blocks forever, leaving the ticker in charge
			var triggers <-chan struct{}
			var watcher *watch.Watcher
			if v.GetBool(flagWatch) {
				sourceAbsolutePath, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("error creating absolute path for source: %q", args[0])
				}
				watcher, err = watch.NewWatcher(sourceAbsolutePath, v.GetDuration(flagWatchDebounce), diagnostics)
				if err != nil {
					return fmt.Errorf("error creating watcher for %q: %w", args[0], err)
				}
				if err := watcher.Start(); err != nil {
					return fmt.Errorf("error starting watcher for %q: %w", args[0], err)
				}
				triggers = watcher.Triggers()
			}

			g, gctx := errgroup.WithContext(ctx)

			if watcher != nil {
				g.Go(func() error {
					<-gctx.Done()
					return watcher.Stop()
				})
			}

			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					count, passErr := mirror.Pass(gctx, input)
					if passErr != nil {
						if errors.Is(passErr, context.Canceled) {
							return nil
						}
						// the failed pass is retried on the next tick
						_ = diagnostics.Log("Error synchronizing", map[string]interface{}{
							"source":  args[0],
							"replica": args[1],
							"err":     passErr.Error(),
						})
					} else {
						_ = diagnostics.Log("Done synchronizing", map[string]interface{}{
							"source":     args[0],
							"replica":    args[1],
							"operations": count,
						})
					}
					select {
					case <-gctx.Done():
						return nil
					case <-ticker.C:
					case <-triggers:
					}
				}
			})

			if err := g.Wait(); err != nil {
				return err
			}

			return nil
		},
	}
	initRunCommandFlags(runCommand.Flags())

	versionCommand := &cobra.Command{
		Use:                   `version`,
		DisableFlagsInUseLine: true,
		Short:                 "show version",
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(MirrorSyncVersion)
			return nil
		},
	}

	rootCommand.AddCommand(layoutsCommand, syncCommand, runCommand, versionCommand)

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mirrorsync: "+err.Error())
		fmt.Fprintln(os.Stderr, "Try \"mirrorsync --help\" for more information.")
		os.Exit(1)
	}
}
