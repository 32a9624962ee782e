// Package scan turns an adapter walk into a classified snapshot.
package scan

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/foldersync/internal/adapter"
	"github.com/Ning0612/foldersync/internal/domain"
	"github.com/Ning0612/foldersync/internal/logger"
)

// Scan walks tree and builds a snapshot of its valid and invalid entries
func Scan(ctx context.Context, tree adapter.Adapter) (*domain.Snapshot, error) {
	entries, err := tree.Walk(ctx)
	if err != nil {
		return nil, err
	}

	snap := domain.NewSnapshot(tree.Root())
	for _, e := range entries {
		if e.Type == domain.EntryInvalid {
			snap.Invalid = append(snap.Invalid, e.Path)
			continue
		}
		snap.Entries[e.Path] = e
	}
	sort.Strings(snap.Invalid)

	logger.Get().Debug("Scanned tree",
		"root", tree.Root(),
		"entries", len(snap.Entries),
		"invalid", len(snap.Invalid))

	return snap, nil
}

// Both scans source and target concurrently.
// The first failure cancels the other scan.
func Both(ctx context.Context, src, tgt adapter.Adapter) (*domain.Snapshot, *domain.Snapshot, error) {
	var srcSnap, tgtSnap *domain.Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := Scan(gctx, src)
		if err != nil {
			return fmt.Errorf("scan source: %w", err)
		}
		srcSnap = snap
		return nil
	})
	g.Go(func() error {
		snap, err := Scan(gctx, tgt)
		if err != nil {
			return fmt.Errorf("scan target: %w", err)
		}
		tgtSnap = snap
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return srcSnap, tgtSnap, nil
}

// Paths returns the sorted union of valid paths in both snapshots
func Paths(src, tgt *domain.Snapshot) []string {
	seen := make(map[string]struct{}, len(src.Entries)+len(tgt.Entries))
	for p := range src.Entries {
		seen[p] = struct{}{}
	}
	for p := range tgt.Entries {
		seen[p] = struct{}{}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
