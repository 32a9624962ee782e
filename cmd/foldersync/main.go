// Command foldersync makes a target directory tree identical to a source tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/term"

	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/lock"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitDeclined = 2
	exitLocked   = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		in:          os.Stdin,
		out:         os.Stdout,
		errOut:      os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd())),
	}

	err := a.rootCmd().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errPartial) {
		describeError(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

// errPartial reports per-path failures already printed in the summary
var errPartial = errors.New("sync finished with failures")

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrDeclined):
		return exitDeclined
	case lock.IsLockError(err):
		return exitLocked
	default:
		return exitFailure
	}
}

// describeError prints err; for a held target lock it also names the
// holder and how to clear the lock
func describeError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)

	var lockErr *lock.LockError
	if errors.As(err, &lockErr) && lockErr.Holder != nil {
		fmt.Fprintf(w, "The target is locked by %s.\n", describeHolder(lockErr.Holder))
		fmt.Fprintf(w, "If no sync is running there, remove the lock with: foldersync unlock %s\n", lockErr.Holder.Target)
	}
}
