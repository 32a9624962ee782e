package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Ning0612/foldersync/internal/adapter/local"
	"github.com/Ning0612/foldersync/internal/core/diff"
	"github.com/Ning0612/foldersync/internal/core/planner"
	"github.com/Ning0612/foldersync/internal/core/scan"
	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/progress"
	"github.com/Ning0612/foldersync/internal/runner"
	"github.com/Ning0612/foldersync/internal/testutil"
)

// faultyTree fails selected target operations
type faultyTree struct {
	*local.Tree
	failRemove map[string]bool
	failMkdir  map[string]bool
}

var errInjected = errors.New("injected failure")

func (f *faultyTree) Remove(path string) error {
	if f.failRemove[path] {
		return errInjected
	}
	return f.Tree.Remove(path)
}

func (f *faultyTree) Mkdir(path string) error {
	if f.failMkdir[path] {
		return errInjected
	}
	return f.Tree.Mkdir(path)
}

type fixture struct {
	srcDir, tgtDir string
	src            *local.Tree
	tgt            *faultyTree
}

func newFixture(t *testing.T, src, tgt testutil.Tree) *fixture {
	t.Helper()

	f := &fixture{srcDir: t.TempDir(), tgtDir: t.TempDir()}
	testutil.WriteTree(t, f.srcDir, src)
	testutil.WriteTree(t, f.tgtDir, tgt)

	var err error
	if f.src, err = local.NewOS(f.srcDir); err != nil {
		t.Fatalf("NewOS failed: %v", err)
	}
	tgtTree, err := local.NewOS(f.tgtDir)
	if err != nil {
		t.Fatalf("NewOS failed: %v", err)
	}
	f.tgt = &faultyTree{Tree: tgtTree, failRemove: map[string]bool{}, failMkdir: map[string]bool{}}
	return f
}

// plan runs scan, detection and planning with a deep comparer
func (f *fixture) plan(t *testing.T, r *runner.Runner) ([]domain.Action, *domain.Snapshot) {
	t.Helper()

	ctx := context.Background()
	srcSnap, tgtSnap, err := scan.Both(ctx, f.src, f.tgt)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	res, err := diff.NewDetector(diff.DeepComparer{}, r, 1).Detect(ctx, f.src, f.tgt, srcSnap, tgtSnap)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	actions, err := planner.Plan(res.Changes)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return actions, srcSnap
}

func (f *fixture) execute(t *testing.T, opts Options) *Result {
	t.Helper()

	r := runner.New(4)
	defer r.Close()

	actions, snap := f.plan(t, r)
	res, err := New(f.src, f.tgt, r, opts).Execute(actions, snap)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return res
}

func failuresByPath(res *Result) map[string]*domain.PathError {
	out := make(map[string]*domain.PathError)
	for _, f := range res.Failures {
		out[f.Path] = f
	}
	return out
}

func TestExecute_Converges(t *testing.T) {
	f := newFixture(t,
		testutil.Tree{
			"a/":          "",
			"a/one.txt":   "one",
			"a/b/":        "",
			"a/b/two.txt": "two",
			"changed.txt": "new content",
			"file2dir/":   "",
			"file2dir/x":  "x",
			"dir2file":    "now a file",
			"empty/":      "",
		},
		testutil.Tree{
			"changed.txt":         "old",
			"file2dir":            "was a file",
			"dir2file/":           "",
			"dir2file/deep/":      "",
			"dir2file/deep/z.txt": "z",
			"stale/":              "",
			"stale/s1/":           "",
			"stale/s1/s2/":        "",
			"stale/s1/s2/f":       "f",
			"stale.txt":           "gone",
		})

	res := f.execute(t, Options{BatchSize: 2})
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}

	testutil.AssertIdenticalTrees(t, f.srcDir, f.tgtDir)

	want := domain.ActionStats{
		// changed.txt, file2dir, dir2file/deep/z.txt, stale/s1/s2/f, stale.txt
		domain.DeleteFile: 5,
		// dir2file, dir2file/deep, stale, stale/s1, stale/s1/s2
		domain.DeleteFolder: 5,
		// a, a/b, file2dir, empty
		domain.CreateFolder: 4,
		// a/one.txt, a/b/two.txt, changed.txt, file2dir/x, dir2file
		domain.CopyFile: 5,
	}
	for kind, n := range want {
		if res.Applied[kind] != n {
			t.Errorf("%v: applied %d, want %d", kind, res.Applied[kind], n)
		}
	}

	wantBytes := int64(len("one") + len("two") + len("new content") + len("x") + len("now a file"))
	if res.BytesCopied != wantBytes {
		t.Errorf("BytesCopied = %d, want %d", res.BytesCopied, wantBytes)
	}
}

func TestExecute_PreservesMetadata(t *testing.T) {
	f := newFixture(t, testutil.Tree{"script.sh": "#!/bin/sh\n"}, nil)
	if err := os.Chmod(filepath.Join(f.srcDir, "script.sh"), 0750); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	res := f.execute(t, Options{})
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	testutil.AssertIdenticalTrees(t, f.srcDir, f.tgtDir)
}

func TestExecute_DeleteFolderSkippedWhenChildFails(t *testing.T) {
	f := newFixture(t, testutil.Tree{"keep.txt": "k"}, testutil.Tree{
		"keep.txt":       "k",
		"old/":           "",
		"old/locked.txt": "l",
		"old/empty/":     "",
		"other/":         "",
		"other/f.txt":    "f",
	})
	f.tgt.failRemove["old/locked.txt"] = true

	res := f.execute(t, Options{})

	failures := failuresByPath(res)
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", res.Failures)
	}
	if !errors.Is(failures["old/locked.txt"], errInjected) {
		t.Errorf("expected injected failure for old/locked.txt, got %v", failures["old/locked.txt"])
	}
	if fe := failures["old"]; fe == nil || !errors.Is(fe, domain.ErrDependencyFailed) || fe.Op != "delete_folder" {
		t.Errorf("expected dependency failure for old, got %v", fe)
	}

	// unrelated work still happens
	testutil.AssertTree(t, f.tgtDir, testutil.Tree{
		"keep.txt":       "k",
		"old/":           "",
		"old/locked.txt": "l",
	})
}

func TestExecute_PriorFailureKeepsAncestors(t *testing.T) {
	f := newFixture(t, nil, testutil.Tree{
		"old/":         "",
		"old/sub/":     "",
		"old/sub/left": "entry that could not be removed",
		"gone/":        "",
	})

	r := runner.New(2)
	defer r.Close()

	actions := []domain.Action{
		{Kind: domain.DeleteFolder, Path: "old/sub"},
		{Kind: domain.DeleteFolder, Path: "old"},
		{Kind: domain.DeleteFolder, Path: "gone"},
	}
	res, err := New(f.src, f.tgt, r, Options{Failed: []string{"old/sub/left"}}).
		Execute(actions, &domain.Snapshot{Entries: map[string]domain.Entry{}})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	failures := failuresByPath(res)
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", res.Failures)
	}
	for _, p := range []string{"old/sub", "old"} {
		if fe := failures[p]; fe == nil || !errors.Is(fe, domain.ErrDependencyFailed) {
			t.Errorf("%s: expected dependency failure, got %v", p, fe)
		}
	}
	if res.Applied[domain.DeleteFolder] != 1 {
		t.Errorf("applied %d folder deletions, want 1", res.Applied[domain.DeleteFolder])
	}
	testutil.AssertTree(t, f.tgtDir, testutil.Tree{
		"old/":         "",
		"old/sub/":     "",
		"old/sub/left": "entry that could not be removed",
	})
}

func TestExecute_CreateFolderFailureSkipsDescendants(t *testing.T) {
	f := newFixture(t, testutil.Tree{
		"n/":          "",
		"n/m/":        "",
		"n/m/f.txt":   "f",
		"n/g.txt":     "g",
		"ok/":         "",
		"ok/fine.txt": "fine",
	}, nil)
	f.tgt.failMkdir["n"] = true

	res := f.execute(t, Options{})

	failures := failuresByPath(res)
	if !errors.Is(failures["n"], errInjected) {
		t.Errorf("expected injected failure for n, got %v", failures["n"])
	}
	for _, p := range []string{"n/m", "n/m/f.txt", "n/g.txt"} {
		if !errors.Is(failures[p], domain.ErrDependencyFailed) {
			t.Errorf("%s: expected dependency failure, got %v", p, failures[p])
		}
	}
	if len(failures) != 4 {
		t.Errorf("expected 4 failures, got %v", res.Failures)
	}

	testutil.AssertTree(t, f.tgtDir, testutil.Tree{
		"ok/":         "",
		"ok/fine.txt": "fine",
	})
	if res.Applied[domain.CopyFile] != 1 || res.Applied[domain.CreateFolder] != 1 {
		t.Errorf("unexpected applied stats %v", res.Applied)
	}
}

func TestExecute_ChangedFileDeleteFailureSkipsCopy(t *testing.T) {
	f := newFixture(t, testutil.Tree{"a.txt": "new"}, testutil.Tree{"a.txt": "old!"})
	f.tgt.failRemove["a.txt"] = true

	res := f.execute(t, Options{})

	if len(res.Failures) != 2 {
		t.Fatalf("expected delete and copy failures, got %v", res.Failures)
	}
	if res.Failures[0].Op != "delete_file" || res.Failures[1].Op != "copy_file" {
		t.Errorf("unexpected failure ops: %v", res.Failures)
	}
	testutil.AssertTree(t, f.tgtDir, testutil.Tree{"a.txt": "old!"})
}

func TestExecute_FailFast(t *testing.T) {
	f := newFixture(t,
		testutil.Tree{"d/": "", "d/f.txt": "f", "g.txt": "g"},
		testutil.Tree{"x.txt": "x", "y.txt": "y", "old/": ""})
	f.tgt.failRemove["x.txt"] = true

	res := f.execute(t, Options{FailFast: true})

	if len(res.Failures) != 1 || res.Failures[0].Path != "x.txt" {
		t.Fatalf("expected only x.txt to fail, got %v", res.Failures)
	}
	// delete_folder old, create_folder d, copy_file d/f.txt and g.txt
	if res.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", res.Skipped)
	}
	// y.txt ran in the same phase as the failure
	if res.Applied[domain.DeleteFile] != 1 {
		t.Errorf("expected the rest of the failing phase to complete, got %v", res.Applied)
	}
	testutil.AssertTree(t, f.tgtDir, testutil.Tree{"x.txt": "x", "old/": ""})
}

func TestExecute_FailFastBetweenFolderLevels(t *testing.T) {
	f := newFixture(t, nil, testutil.Tree{"a/": "", "a/b/": "", "a/b/c/": "", "z/": "", "z/y/": ""})
	f.tgt.failRemove["z/y"] = true

	res := f.execute(t, Options{FailFast: true})

	if len(res.Failures) != 1 || res.Failures[0].Path != "z/y" {
		t.Fatalf("expected only z/y to fail, got %v", res.Failures)
	}
	// level 2 (a/b, z/y) ran, level 1 (a, z) skipped
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}
	testutil.AssertTree(t, f.tgtDir, testutil.Tree{"a/": "", "z/": "", "z/y/": ""})
}

func TestExecute_FailFastBetweenCreateLevels(t *testing.T) {
	f := newFixture(t, testutil.Tree{"a/": "", "b/": "", "b/c/": ""}, nil)
	f.tgt.failMkdir["a"] = true

	res := f.execute(t, Options{FailFast: true})

	if len(res.Failures) != 1 || res.Failures[0].Path != "a" {
		t.Fatalf("expected only a to fail, got %v", res.Failures)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	testutil.AssertTree(t, f.tgtDir, testutil.Tree{"b/": ""})
}

func TestExecute_UnknownAction(t *testing.T) {
	f := newFixture(t, nil, nil)

	r := runner.New(1)
	defer r.Close()

	res, err := New(f.src, f.tgt, r, Options{}).Execute([]domain.Action{{Kind: domain.ActionKind(42), Path: "p"}}, domain.NewSnapshot(f.srcDir))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Failures) != 1 || !errors.Is(res.Failures[0], domain.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction failure, got %v", res.Failures)
	}
}

func TestExecute_ProgressPerPhase(t *testing.T) {
	f := newFixture(t, testutil.Tree{"d/": "", "d/a": "a", "b": "b"}, testutil.Tree{"gone": "g"})

	r := runner.New(2)
	defer r.Close()

	actions, snap := f.plan(t, r)

	totals := make(map[string]int)
	done := make(map[string]int)
	e := New(f.src, f.tgt, r, Options{})
	e.SetReporter(progress.NewCallbackReporter(func(u progress.Update) {
		totals[u.Phase] = u.Total
		done[u.Phase] = u.Done
	}))

	if _, err := e.Execute(actions, snap); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := map[string]int{"delete_file": 1, "create_folder": 1, "copy_file": 2}
	for phase, n := range want {
		if totals[phase] != n || done[phase] != n {
			t.Errorf("%s: done %d of %d, want %d", phase, done[phase], totals[phase], n)
		}
	}
	if _, ok := totals["delete_folder"]; ok {
		t.Error("empty phases should not be reported")
	}
}
