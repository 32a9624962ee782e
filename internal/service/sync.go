// Package service wires scanning, change detection, planning and execution
// into a sync run between two local directory trees.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/foldersync/internal/adapter"
	"github.com/Ning0612/foldersync/internal/adapter/local"
	"github.com/Ning0612/foldersync/internal/config"
	"github.com/Ning0612/foldersync/internal/core/diff"
	"github.com/Ning0612/foldersync/internal/core/executor"
	"github.com/Ning0612/foldersync/internal/core/planner"
	"github.com/Ning0612/foldersync/internal/core/scan"
	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/lock"
	"github.com/Ning0612/foldersync/internal/logger"
	"github.com/Ning0612/foldersync/internal/progress"
	"github.com/Ning0612/foldersync/internal/runner"
	"github.com/Ning0612/foldersync/internal/state"
)

// Confirmer approves the steps of a sync run that need consent
type Confirmer interface {
	// ConfirmInvalidRemoval is asked before invalid target entries are
	// removed under the prompt policy
	ConfirmInvalidRemoval(ctx context.Context, target string, paths []string) (bool, error)

	// ConfirmPlan is asked before a plan with work is executed
	ConfirmPlan(ctx context.Context, plan *domain.Plan) (bool, error)
}

// AutoApprove approves everything
type AutoApprove struct{}

func (AutoApprove) ConfirmInvalidRemoval(context.Context, string, []string) (bool, error) {
	return true, nil
}

func (AutoApprove) ConfirmPlan(context.Context, *domain.Plan) (bool, error) {
	return true, nil
}

// SyncService orchestrates sync runs
type SyncService struct {
	opts     config.Options
	runner   *runner.Runner
	history  *state.Manager
	reporter progress.Reporter
}

// NewSyncService creates a sync service. The service owns a worker pool and,
// when opts.HistoryDir is set, the history database; Close releases both.
func NewSyncService(opts config.Options) (*SyncService, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &SyncService{
		opts:     opts,
		reporter: progress.NullReporter{},
	}

	if opts.HistoryDir != "" {
		history, err := state.NewManager(opts.HistoryDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		s.history = history
	}

	s.runner = runner.New(opts.Workers)
	return s, nil
}

// SetProgressReporter sets the progress reporter for comparisons and actions
func (s *SyncService) SetProgressReporter(reporter progress.Reporter) {
	if reporter == nil {
		reporter = progress.NullReporter{}
	}
	s.reporter = reporter
}

// History returns the most recent recorded runs. It fails when history is disabled.
func (s *SyncService) History(limit int, target string) ([]state.ExecutionRecord, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: history directory is not configured", domain.ErrConfigInvalid)
	}
	if target != "" {
		abs, err := filepath.Abs(config.ExpandPath(target))
		if err != nil {
			return nil, err
		}
		target = abs
	}
	return s.history.History(limit, target)
}

// LastSuccess returns the most recent successful run into target, or nil
// when there is none. It fails when history is disabled.
func (s *SyncService) LastSuccess(target string) (*state.ExecutionRecord, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: history directory is not configured", domain.ErrConfigInvalid)
	}
	abs, err := filepath.Abs(config.ExpandPath(target))
	if err != nil {
		return nil, err
	}
	return s.history.LastSuccess(abs)
}

// Plan scans both trees and computes the changes and actions that make
// target identical to source. Nothing is modified.
func (s *SyncService) Plan(ctx context.Context, source, target string) (*domain.Plan, error) {
	src, tgt, err := openRoots(source, target)
	if err != nil {
		return nil, err
	}

	plan := &domain.Plan{
		RunID:     uuid.NewString(),
		Source:    src.Root(),
		Target:    tgt.Root(),
		CreatedAt: time.Now(),
	}
	log := logger.With("run_id", plan.RunID)
	log.Info("Planning sync",
		"source", plan.Source,
		"target", plan.Target,
		"depth", s.opts.Depth,
		"workers", s.runner.Workers())

	srcSnap, tgtSnap, err := scan.Both(ctx, src, tgt)
	if err != nil {
		log.Error("Scan failed", "error", err)
		return nil, err
	}
	plan.SourceSnapshot = srcSnap
	plan.InvalidSource = srcSnap.Invalid
	plan.InvalidTarget = tgtSnap.Invalid

	if len(plan.InvalidSource) > 0 {
		log.Warn("Ignoring invalid source entries", "count", len(plan.InvalidSource))
	}
	if len(plan.InvalidTarget) > 0 && s.opts.InvalidEntries == config.InvalidAbort {
		log.Error("Invalid entries in target", "count", len(plan.InvalidTarget))
		return nil, fmt.Errorf("%w: %d entries in %s", domain.ErrInvalidEntries, len(plan.InvalidTarget), plan.Target)
	}

	comparer, err := diff.NewComparer(s.opts.Depth, s.opts.Checksum)
	if err != nil {
		return nil, err
	}
	detector := diff.NewDetector(comparer, s.runner, s.opts.BatchSize)
	detector.SetReporter(s.reporter)

	detected, err := detector.Detect(ctx, src, tgt, srcSnap, tgtSnap)
	if err != nil {
		log.Error("Change detection failed", "error", err)
		return nil, err
	}
	plan.Changes = detected.Changes
	plan.Failures = detected.Failures

	actions, err := planner.Plan(plan.Changes)
	if err != nil {
		return nil, err
	}
	plan.Actions = actions

	stats := plan.ActionStats()
	log.Info("Sync plan created",
		"changes", len(plan.Changes),
		"actions", len(plan.Actions),
		"delete_file", stats[domain.DeleteFile],
		"delete_folder", stats[domain.DeleteFolder],
		"create_folder", stats[domain.CreateFolder],
		"copy_file", stats[domain.CopyFile],
		"compare_failures", len(plan.Failures),
		"elapsed", time.Since(plan.CreatedAt),
	)
	return plan, nil
}

// Execute applies plan under the target lock. Invalid target entries listed
// in the plan are removed first. Per-path failures are collected into the
// report; the returned error is reserved for failures that stop the run.
// Cancellation is only observed before the lock is taken.
func (s *SyncService) Execute(ctx context.Context, plan *domain.Plan) (*domain.SyncReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logger.With("run_id", plan.RunID)
	report := domain.NewSyncReport(plan)

	src, tgt, err := openRoots(plan.Source, plan.Target)
	if err != nil {
		return nil, err
	}

	fileLock, err := lock.NewFileLock(s.opts.LockDir, plan.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to create target lock: %w", err)
	}
	fileLock.SetStaleTimeout(s.opts.StaleLockTimeout)
	log.Debug("Acquiring target lock", "path", fileLock.Path())
	if err := fileLock.Acquire(plan.RunID); err != nil {
		log.Error("Failed to acquire target lock", "error", err)
		return nil, fmt.Errorf("failed to acquire target lock: %w", err)
	}
	defer func() {
		if err := fileLock.Release(); err != nil {
			log.Error("Failed to release target lock", "error", err)
		}
	}()

	remaining := s.removeInvalid(tgt, plan.InvalidTarget, report)

	exec := executor.New(src, tgt, s.runner, executor.Options{
		FailFast:  s.opts.FailFast,
		BatchSize: s.opts.BatchSize,
		Failed:    remaining,
	})
	exec.SetReporter(s.reporter)

	result, err := exec.Execute(plan.Actions, plan.SourceSnapshot)
	if err != nil {
		report.Elapsed = time.Since(plan.CreatedAt)
		s.record(plan, report, err)
		return nil, err
	}

	report.Applied = result.Applied
	report.BytesCopied = result.BytesCopied
	report.Skipped = result.Skipped
	report.Failures = append(report.Failures, result.Failures...)
	report.Executed = true
	report.Elapsed = time.Since(plan.CreatedAt)

	for _, f := range report.Failures {
		log.Warn("Action failed", "op", f.Op, "path", f.Path, "error", f.Err)
	}
	log.Info("Sync finished",
		"applied", report.Applied.Total(),
		"bytes_copied", report.BytesCopied,
		"failures", len(report.Failures),
		"skipped", report.Skipped,
		"elapsed", report.Elapsed,
	)

	s.record(plan, report, nil)
	return report, nil
}

// Sync plans, asks confirmer where consent is needed and executes.
// A nil confirmer approves everything. When consent is refused the report
// is returned with an error matching domain.ErrDeclined; a refused invalid
// entry removal also matches domain.ErrInvalidEntries.
func (s *SyncService) Sync(ctx context.Context, source, target string, confirmer Confirmer) (*domain.SyncReport, error) {
	if confirmer == nil {
		confirmer = AutoApprove{}
	}

	plan, err := s.Plan(ctx, source, target)
	if err != nil {
		return nil, err
	}

	if len(plan.InvalidTarget) > 0 && s.opts.InvalidEntries == config.InvalidPrompt {
		ok, err := confirmer.ConfirmInvalidRemoval(ctx, plan.Target, plan.InvalidTarget)
		if err != nil {
			return nil, err
		}
		if !ok {
			return s.decline(plan, fmt.Errorf("%w: %w: removal of %d entries in %s",
				domain.ErrDeclined, domain.ErrInvalidEntries, len(plan.InvalidTarget), plan.Target))
		}
	}

	if plan.HasWork() {
		ok, err := confirmer.ConfirmPlan(ctx, plan)
		if err != nil {
			return nil, err
		}
		if !ok {
			return s.decline(plan, domain.ErrDeclined)
		}
	}

	return s.Execute(ctx, plan)
}

// Close stops the worker pool and closes the history database
func (s *SyncService) Close() error {
	s.runner.Close()
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

func (s *SyncService) decline(plan *domain.Plan, reason error) (*domain.SyncReport, error) {
	report := domain.NewSyncReport(plan)
	report.Elapsed = time.Since(plan.CreatedAt)
	logger.Get().Info("Sync not executed", "run_id", plan.RunID, "reason", reason)
	s.record(plan, report, reason)
	return report, reason
}

// removeInvalid deletes invalid target entries and returns the paths that
// could not be removed
func (s *SyncService) removeInvalid(tgt adapter.Adapter, paths []string, report *domain.SyncReport) []string {
	if len(paths) == 0 {
		return nil
	}

	s.reporter.Begin("remove_invalid", len(paths))
	results, err := runner.Map(s.runner, func(path string) (struct{}, error) {
		return struct{}{}, tgt.Remove(path)
	}, paths, runner.WithProgress(s.reporter.Advance))
	s.reporter.End()

	if err != nil {
		for _, path := range paths {
			report.Failures = append(report.Failures, &domain.PathError{Path: path, Op: "remove_invalid", Err: err})
		}
		return paths
	}

	var remaining []string
	for i, res := range results {
		if _, err := res.Unwrap(); err != nil {
			report.Failures = append(report.Failures, &domain.PathError{Path: paths[i], Op: "remove_invalid", Err: err})
			remaining = append(remaining, paths[i])
			continue
		}
		report.InvalidRemoved++
	}
	return remaining
}

func (s *SyncService) record(plan *domain.Plan, report *domain.SyncReport, runErr error) {
	if s.history == nil {
		return
	}
	rec := state.RecordFromReport(report, plan.CreatedAt, runErr)
	if err := s.history.SaveExecution(rec); err != nil {
		logger.Get().Warn("Failed to record run", "run_id", plan.RunID, "error", err)
	}
}

// openRoots opens both roots and rejects overlapping trees
func openRoots(source, target string) (*local.Tree, *local.Tree, error) {
	src, err := local.NewOS(config.ExpandPath(source))
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	tgt, err := local.NewOS(config.ExpandPath(target))
	if err != nil {
		return nil, nil, fmt.Errorf("target: %w", err)
	}

	overlap, err := overlapping(src.Root(), tgt.Root())
	if err != nil {
		return nil, nil, err
	}
	if overlap {
		return nil, nil, fmt.Errorf("%w: %s and %s", domain.ErrOverlappingRoots, src.Root(), tgt.Root())
	}
	return src, tgt, nil
}

// overlapping reports whether a and b are the same directory or one
// contains the other, after resolving symlinks
func overlapping(a, b string) (bool, error) {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		return false, err
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		return false, err
	}

	if ra == rb || within(ra, rb) || within(rb, ra) {
		return true, nil
	}

	// catches case-insensitive filesystems and bind mounts
	ia, errA := os.Stat(ra)
	ib, errB := os.Stat(rb)
	if errA == nil && errB == nil && os.SameFile(ia, ib) {
		return true, nil
	}
	return false, nil
}

func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

var _ Confirmer = AutoApprove{}
