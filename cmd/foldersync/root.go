package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ning0612/foldersync/internal/config"
	"github.com/Ning0612/foldersync/internal/core/diff"
	"github.com/Ning0612/foldersync/internal/logger"
	"github.com/Ning0612/foldersync/internal/progress"
	"github.com/Ning0612/foldersync/internal/service"
)

// app holds the process streams so commands can be run from tests
type app struct {
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool

	configPath string
	output     string
	verbose    bool
}

type syncFlags struct {
	shallow bool
	yes     bool
	dryRun  bool
}

func (a *app) rootCmd() *cobra.Command {
	var flags syncFlags
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "foldersync [flags] <source> <target>",
		Short: "Make a target directory identical to a source directory",
		Long: `foldersync compares two directory trees and applies the minimal set of
deletions, folder creations and file copies that makes the target identical
to the source. The source is never modified.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, args[0], args[1], flags)
		},
	}
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default: foldersync.yaml in the working or config directory)")
	pf.StringVarP(&a.output, "output", "o", "text", "output format: text, json or yaml")
	pf.String("history-dir", defaults.HistoryDir, "directory of the run history database; empty disables history")
	pf.String("log-level", defaults.Log.Level, "log level: debug, info, warn or error")
	pf.String("log-format", defaults.Log.Format, "log format: text or json")
	pf.String("log-file", defaults.Log.File, "also write logs to this rotating file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level, overriding --log-level")

	f := cmd.Flags()
	f.IntP("workers", "w", defaults.Workers, "number of concurrent workers (0 = one per CPU)")
	f.String("depth", string(defaults.Depth), "comparison depth: shallow, deep or checksum")
	f.BoolVar(&flags.shallow, "shallow", false, "compare size and modification time only (same as --depth=shallow)")
	f.Int("batch-size", defaults.BatchSize, "actions per scheduled unit")
	f.String("invalid-entries", string(defaults.InvalidEntries), "invalid target entries: prompt, autoRemove or abort")
	f.Bool("fail-fast", defaults.FailFast, "stop after the first phase with a failure")
	f.String("checksum", string(defaults.Checksum), "checksum algorithm for --depth=checksum: md5, sha256 or xxhash")
	f.String("lock-dir", defaults.LockDir, "directory of per-target lock files")
	f.Duration("stale-lock-timeout", defaults.StaleLockTimeout, "age after which a lock from another host is stale")
	f.Int("max-logged-paths", defaults.MaxLoggedPaths, "paths listed per action kind in the preview")
	f.BoolVarP(&flags.yes, "yes", "y", false, "do not ask for confirmation")
	f.BoolVarP(&flags.yes, "quiet", "q", false, "alias of --yes")
	f.BoolVarP(&flags.dryRun, "dry-run", "n", false, "show the plan without applying it")

	cmd.AddCommand(a.historyCmd(), a.unlockCmd())
	return cmd
}

// setup loads the options and initialises logging; the returned func
// shuts logging down
func (a *app) setup(cmd *cobra.Command) (*config.Options, func(), error) {
	if !validOutput(a.output) {
		return nil, nil, fmt.Errorf("invalid output format: %q", a.output)
	}

	opts, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logCfg := opts.Log.Logger()
	logCfg.Writer = a.errOut
	if err := logger.Init(logCfg); err != nil {
		return nil, nil, err
	}
	if a.verbose {
		logger.SetLevel(logger.LevelDebug)
	}
	return opts, func() { logger.Shutdown() }, nil
}

func (a *app) runSync(cmd *cobra.Command, source, target string, flags syncFlags) error {
	opts, shutdown, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	if flags.shallow {
		opts.Depth = diff.DepthShallow
	}

	svc, err := service.NewSyncService(*opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	if a.interactive && a.output == "text" {
		svc.SetProgressReporter(progress.NewBarReporter(a.errOut, 30))
	}

	ctx := cmd.Context()

	if flags.dryRun {
		plan, err := svc.Plan(ctx, source, target)
		if err != nil {
			return err
		}
		if err := a.renderPlan(plan, opts.MaxLoggedPaths); err != nil {
			return err
		}
		if len(plan.Failures) > 0 {
			return errPartial
		}
		return nil
	}

	var confirmer service.Confirmer = service.AutoApprove{}
	if !flags.yes {
		if !a.interactive {
			return errors.New("confirmation needs a terminal; pass --yes to sync without asking")
		}
		confirmer = newPrompter(a.in, a.errOut, opts.MaxLoggedPaths)
	}

	report, err := svc.Sync(ctx, source, target, confirmer)
	if report != nil {
		if renderErr := a.renderReport(report); renderErr != nil {
			return renderErr
		}
	}
	if err != nil {
		return err
	}
	if !report.OK() {
		return errPartial
	}
	return nil
}
