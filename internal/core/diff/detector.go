package diff

import (
	"context"
	"fmt"

	"github.com/Ning0612/foldersync/internal/adapter"
	"github.com/Ning0612/foldersync/internal/core/scan"
	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/logger"
	"github.com/Ning0612/foldersync/internal/progress"
	"github.com/Ning0612/foldersync/internal/runner"
)

// Detector classifies every path of two snapshots
type Detector struct {
	comparer  Comparer
	runner    *runner.Runner
	batchSize int
	reporter  progress.Reporter
}

// NewDetector creates a detector running comparisons on r
func NewDetector(comparer Comparer, r *runner.Runner, batchSize int) *Detector {
	return &Detector{
		comparer:  comparer,
		runner:    r,
		batchSize: batchSize,
		reporter:  progress.NullReporter{},
	}
}

// SetReporter sets the progress reporter used for the compare phase
func (d *Detector) SetReporter(r progress.Reporter) {
	if r == nil {
		r = progress.NullReporter{}
	}
	d.reporter = r
}

// Result holds the detected changes and the paths that could not be compared
type Result struct {
	// Changes is sorted by path; failed paths are absent
	Changes []domain.Change

	// Failures holds one compare error per failed path
	Failures []*domain.PathError
}

// Classify applies the decision table to one path. src and tgt are nil when
// the path is absent on that side. For two files, equal is the content
// comparison result; it is ignored otherwise.
func Classify(src, tgt *domain.Entry, equal bool) (domain.ChangeKind, error) {
	switch {
	case src == nil && tgt == nil:
		return 0, fmt.Errorf("%w: path absent on both sides", domain.ErrUnknownChange)
	case src == nil:
		if tgt.IsDir() {
			return domain.RemovedFolder, nil
		}
		return domain.RemovedFile, nil
	case tgt == nil:
		if src.IsDir() {
			return domain.NewFolder, nil
		}
		return domain.NewFile, nil
	case src.IsDir() && tgt.IsDir():
		return domain.UnchangedFolder, nil
	case src.IsDir():
		return domain.ChangedFile2Folder, nil
	case tgt.IsDir():
		return domain.ChangedFolder2File, nil
	case equal:
		return domain.UnchangedFile, nil
	default:
		return domain.ChangedFile, nil
	}
}

type pair struct {
	index int
	src   File
	tgt   File
}

// Detect compares the snapshots of src and tgt.
// Only file pairs present on both sides need a content comparison; those run
// on the runner. A comparison error becomes a per-path failure. The returned
// error is reserved for cancellation and runner misuse.
func (d *Detector) Detect(ctx context.Context, src, tgt adapter.Adapter, srcSnap, tgtSnap *domain.Snapshot) (*Result, error) {
	paths := scan.Paths(srcSnap, tgtSnap)
	kinds := make([]domain.ChangeKind, len(paths))
	failed := make([]error, len(paths))

	var pairs []pair
	for i, path := range paths {
		s, inSrc := srcSnap.Entries[path]
		t, inTgt := tgtSnap.Entries[path]

		if inSrc && inTgt && s.IsFile() && t.IsFile() {
			pairs = append(pairs, pair{
				index: i,
				src:   File{Tree: src, Entry: s},
				tgt:   File{Tree: tgt, Entry: t},
			})
			continue
		}

		var sp, tp *domain.Entry
		if inSrc {
			sp = &s
		}
		if inTgt {
			tp = &t
		}
		kind, err := Classify(sp, tp, false)
		if err != nil {
			return nil, err
		}
		kinds[i] = kind
	}

	d.reporter.Begin("compare", len(pairs))
	results, err := runner.Map(d.runner, func(p pair) (bool, error) {
		return d.comparer.Equal(ctx, p.src, p.tgt)
	}, pairs,
		runner.WithBatchSize(d.batchSize),
		runner.WithProgress(d.reporter.Advance),
	)
	d.reporter.End()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for j, res := range results {
		p := pairs[j]
		equal, err := res.Unwrap()
		if err != nil {
			failed[p.index] = err
			continue
		}
		if equal {
			kinds[p.index] = domain.UnchangedFile
		} else {
			kinds[p.index] = domain.ChangedFile
		}
	}

	out := &Result{Changes: make([]domain.Change, 0, len(paths))}
	for i, path := range paths {
		if failed[i] != nil {
			logger.Get().Warn("Cannot compare file", "path", path, "error", failed[i])
			out.Failures = append(out.Failures, &domain.PathError{Path: path, Op: "compare", Err: failed[i]})
			continue
		}
		out.Changes = append(out.Changes, domain.Change{Path: path, Kind: kinds[i]})
	}
	return out, nil
}
