// Package executor applies a sync plan to the target tree.
//
// Actions run in four phases, each finishing before the next starts:
// file deletion, folder deletion (deepest level first), folder creation
// (shallowest first) and file copy. An action whose prerequisite failed is
// not attempted and reported with domain.ErrDependencyFailed.
package executor

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ning0612/foldersync/internal/adapter"
	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/logger"
	"github.com/Ning0612/foldersync/internal/progress"
	"github.com/Ning0612/foldersync/internal/runner"
)

// Options configures an executor
type Options struct {
	// FailFast stops before the next phase or level once a failure is recorded
	FailFast bool

	// BatchSize groups same-level actions into one scheduled unit
	BatchSize int

	// Failed lists target paths that already failed before execution, such
	// as invalid entries that could not be removed. Their ancestors are not
	// deleted and nothing is created beneath them.
	Failed []string
}

// Result is the outcome of executing a list of actions
type Result struct {
	Applied     domain.ActionStats
	BytesCopied int64

	// Skipped counts actions not attempted because of fail-fast
	Skipped int

	Failures []*domain.PathError
}

// Executor applies actions from a source tree to a target tree
type Executor struct {
	src      adapter.Adapter
	tgt      adapter.Adapter
	runner   *runner.Runner
	opts     Options
	reporter progress.Reporter
}

// New creates an executor using r for concurrency
func New(src, tgt adapter.Adapter, r *runner.Runner, opts Options) *Executor {
	return &Executor{
		src:      src,
		tgt:      tgt,
		runner:   r,
		opts:     opts,
		reporter: progress.NullReporter{},
	}
}

// SetReporter sets the progress reporter; one phase is reported per action kind
func (e *Executor) SetReporter(r progress.Reporter) {
	if r == nil {
		r = progress.NullReporter{}
	}
	e.reporter = r
}

// run is the state of one Execute call
type run struct {
	*Executor
	snap   *domain.Snapshot
	deps   *tracker
	result *Result
	log    logger.Logger
}

// Execute applies actions in phase order. snap is the source snapshot taken
// during planning; it supplies size, mode and modification time for copies.
// Execute always runs to completion: it does not observe cancellation.
func (e *Executor) Execute(actions []domain.Action, snap *domain.Snapshot) (*Result, error) {
	r := &run{
		Executor: e,
		snap:     snap,
		deps:     newTracker(),
		result:   &Result{Applied: make(domain.ActionStats)},
		log:      logger.With("target", e.tgt.Root()),
	}
	for _, p := range e.opts.Failed {
		r.deps.fail(p)
	}

	byKind := make(map[domain.ActionKind][]string)
	for _, a := range actions {
		switch a.Kind {
		case domain.DeleteFile, domain.DeleteFolder, domain.CreateFolder, domain.CopyFile:
			byKind[a.Kind] = append(byKind[a.Kind], a.Path)
		default:
			r.fail(a.Kind, a.Path, domain.ErrUnknownAction)
		}
	}

	phases := []struct {
		kind domain.ActionKind
		fn   func([]string) error
	}{
		{domain.DeleteFile, r.deleteFiles},
		{domain.DeleteFolder, r.deleteFolders},
		{domain.CreateFolder, r.createFolders},
		{domain.CopyFile, r.copyFiles},
	}

	for i, phase := range phases {
		paths := byKind[phase.kind]
		if r.stopped() {
			for _, p := range phases[i:] {
				r.result.Skipped += len(byKind[p.kind])
			}
			r.log.Warn("Stopping after failure", "phase", phase.kind, "skipped", r.result.Skipped)
			break
		}
		if len(paths) == 0 {
			continue
		}

		start := time.Now()
		r.reporter.Begin(phase.kind.String(), len(paths))
		err := phase.fn(paths)
		r.reporter.End()
		if err != nil {
			return nil, err
		}

		r.log.Debug("Phase finished",
			"phase", phase.kind,
			"actions", len(paths),
			"applied", r.result.Applied[phase.kind],
			"elapsed", time.Since(start))
	}

	return r.result, nil
}

func (r *run) stopped() bool {
	return r.opts.FailFast && len(r.result.Failures) > 0
}

// fail records a failure on the coordinator
func (r *run) fail(kind domain.ActionKind, path string, err error) {
	r.deps.fail(path)
	r.result.Failures = append(r.result.Failures, &domain.PathError{Path: path, Op: kind.String(), Err: err})
	r.log.Warn("Action failed", "action", kind, "path", path, "error", err)
}

// collect merges per-item results into the run result
func (r *run) collect(kind domain.ActionKind, paths []string, results []runner.Result[int64]) {
	for i, res := range results {
		n, err := res.Unwrap()
		switch {
		case errors.Is(err, domain.ErrSkipped):
			r.result.Skipped++
		case err != nil:
			r.fail(kind, paths[i], err)
		default:
			r.result.Applied[kind]++
			r.result.BytesCopied += n
		}
	}
}

func (r *run) mapPaths(kind domain.ActionKind, paths []string, fn func(string) (int64, error), opts ...runner.Option) error {
	opts = append(opts,
		runner.WithBatchSize(r.opts.BatchSize),
		runner.WithProgress(r.reporter.Advance))

	results, err := runner.Map(r.runner, fn, paths, opts...)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	r.collect(kind, paths, results)
	return nil
}

func (r *run) deleteFiles(paths []string) error {
	return r.mapPaths(domain.DeleteFile, paths, func(p string) (int64, error) {
		return 0, r.tgt.Remove(p)
	})
}

// deleteFolders removes folders one depth level at a time, deepest first.
// A folder is skipped when anything beneath it failed to be deleted.
func (r *run) deleteFolders(paths []string) error {
	levels := make(map[int][]string)
	for _, p := range paths {
		d := domain.Depth(p)
		levels[d] = append(levels[d], p)
	}
	depths := make([]int, 0, len(levels))
	for d := range levels {
		depths = append(depths, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(depths)))

	for i, d := range depths {
		if r.stopped() {
			for _, rest := range depths[i:] {
				r.result.Skipped += len(levels[rest])
			}
			return nil
		}

		var ready []string
		for _, p := range levels[d] {
			if r.deps.failedBelow(p) {
				r.fail(domain.DeleteFolder, p, domain.ErrDependencyFailed)
				r.reporter.Advance(1)
				continue
			}
			ready = append(ready, p)
		}

		err := r.mapPaths(domain.DeleteFolder, ready, func(p string) (int64, error) {
			return 0, r.tgt.Remove(p)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// createFolders creates folders shallowest first through runner ordering.
// Tasks consult the tracker directly: a folder whose parent failed at an
// earlier level is skipped.
func (r *run) createFolders(paths []string) error {
	order := make([]int, len(paths))
	for i, p := range paths {
		order[i] = domain.Depth(p)
	}

	// lowest depth with a failure; levels complete in order, so tasks only
	// ever observe failures from shallower levels or their own
	var failedDepth atomic.Int64
	failedDepth.Store(math.MaxInt64)
	markFailed := func(p string) {
		r.deps.fail(p)
		d := int64(domain.Depth(p))
		for {
			cur := failedDepth.Load()
			if d >= cur || failedDepth.CompareAndSwap(cur, d) {
				return
			}
		}
	}

	return r.mapPaths(domain.CreateFolder, paths, func(p string) (int64, error) {
		if r.opts.FailFast && failedDepth.Load() < int64(domain.Depth(p)) {
			return 0, domain.ErrSkipped
		}
		if r.deps.failedAtOrAbove(p) {
			markFailed(p)
			return 0, domain.ErrDependencyFailed
		}
		if err := r.tgt.Mkdir(p); err != nil {
			markFailed(p)
			return 0, err
		}
		return 0, nil
	}, runner.WithOrder(order))
}

func (r *run) copyFiles(paths []string) error {
	return r.mapPaths(domain.CopyFile, paths, func(p string) (int64, error) {
		if r.deps.failedAtOrAbove(p) {
			return 0, domain.ErrDependencyFailed
		}
		return r.copyFile(p)
	})
}

func (r *run) copyFile(path string) (int64, error) {
	meta, ok := r.snap.Entries[path]
	if !ok {
		var err error
		if meta, err = r.src.Stat(path); err != nil {
			return 0, err
		}
	}

	rc, err := r.src.Open(path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	return r.tgt.WriteFile(path, rc, meta)
}

// tracker records target paths whose action failed or was skipped.
// Phases read it to decide whether an action's prerequisites hold.
type tracker struct {
	mu     sync.RWMutex
	failed map[string]struct{}
	// below holds every ancestor of a failed path
	below map[string]struct{}
}

func newTracker() *tracker {
	return &tracker{
		failed: make(map[string]struct{}),
		below:  make(map[string]struct{}),
	}
}

func (t *tracker) fail(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed[path] = struct{}{}
	for _, a := range domain.Ancestors(path) {
		t.below[a] = struct{}{}
	}
}

// failedBelow reports whether a path beneath path failed
func (t *tracker) failedBelow(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.below[path]
	return ok
}

// failedAtOrAbove reports whether path or one of its ancestors failed
func (t *tracker) failedAtOrAbove(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.failed[path]; ok {
		return true
	}
	for _, a := range domain.Ancestors(path) {
		if _, ok := t.failed[a]; ok {
			return true
		}
	}
	return false
}
