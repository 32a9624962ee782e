package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Ning0612/foldersync/internal/config"
	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/lock"
)

type unlockView struct {
	Target  string         `json:"target" yaml:"target"`
	Holder  *lock.LockInfo `json:"holder,omitempty" yaml:"holder,omitempty"`
	Removed bool           `json:"removed" yaml:"removed"`
}

func (a *app) unlockCmd() *cobra.Command {
	var yes bool
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "unlock <target>",
		Short: "Remove the lock left on a target by an interrupted sync",
		Long: `unlock shows who holds the lock on a target directory and removes it.
Locks whose holder is gone are removed without asking.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, shutdown, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			target, err := filepath.Abs(config.ExpandPath(args[0]))
			if err != nil {
				return err
			}
			fileLock, err := lock.NewFileLock(opts.LockDir, target)
			if err != nil {
				return err
			}
			fileLock.SetStaleTimeout(opts.StaleLockTimeout)

			view := unlockView{Target: target}
			if !fileLock.IsLocked() {
				// clears a stale or unreadable lock file, if any
				if err := fileLock.ForceRelease(); err != nil {
					return err
				}
				return a.renderUnlock(view)
			}

			holder, err := fileLock.GetHolder()
			if err != nil {
				return err
			}
			view.Holder = holder

			if !yes {
				if !a.interactive {
					return errors.New("removing an active lock needs a terminal; pass --yes to remove it without asking")
				}
				fmt.Fprintf(a.errOut, "%s is locked by %s\n", target, describeHolder(holder))
				ok, err := newPrompter(a.in, a.errOut, 0).ask(cmd.Context(), "Remove the lock?")
				if err != nil {
					return err
				}
				if !ok {
					return domain.ErrDeclined
				}
			}

			if err := fileLock.ForceRelease(); err != nil {
				return err
			}
			view.Removed = true
			return a.renderUnlock(view)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&yes, "yes", "y", false, "remove an active lock without asking")
	f.String("lock-dir", defaults.LockDir, "directory of per-target lock files")
	f.Duration("stale-lock-timeout", defaults.StaleLockTimeout, "age after which a lock from another host is stale")
	return cmd
}

func (a *app) renderUnlock(view unlockView) error {
	if a.output != "text" {
		return a.encode(view)
	}

	switch {
	case view.Holder == nil:
		fmt.Fprintf(a.out, "No active lock on %s.\n", view.Target)
	case view.Removed:
		fmt.Fprintf(a.out, "Removed lock on %s held by %s.\n", view.Target, describeHolder(view.Holder))
	}
	return nil
}

func describeHolder(h *lock.LockInfo) string {
	s := fmt.Sprintf("PID %d on %s since %s", h.PID, h.Hostname, h.StartTime.Local().Format("2006-01-02 15:04:05"))
	if h.RunID != "" {
		s += " (run " + h.RunID + ")"
	}
	return s
}
