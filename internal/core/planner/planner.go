// Package planner turns detected changes into primitive target actions.
package planner

import (
	"fmt"
	"sort"

	"github.com/Ning0612/foldersync/internal/domain"
)

// ActionsFor returns the actions one change expands to, in phase order
func ActionsFor(c domain.Change) ([]domain.Action, error) {
	act := func(kinds ...domain.ActionKind) []domain.Action {
		out := make([]domain.Action, len(kinds))
		for i, k := range kinds {
			out[i] = domain.Action{Kind: k, Path: c.Path}
		}
		return out
	}

	switch c.Kind {
	case domain.RemovedFile:
		return act(domain.DeleteFile), nil
	case domain.RemovedFolder:
		return act(domain.DeleteFolder), nil
	case domain.NewFile:
		return act(domain.CopyFile), nil
	case domain.NewFolder:
		return act(domain.CreateFolder), nil
	case domain.ChangedFile:
		return act(domain.DeleteFile, domain.CopyFile), nil
	case domain.ChangedFile2Folder:
		return act(domain.DeleteFile, domain.CreateFolder), nil
	case domain.ChangedFolder2File:
		return act(domain.DeleteFolder, domain.CopyFile), nil
	case domain.UnchangedFile, domain.UnchangedFolder:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %v at %s", domain.ErrUnknownChange, c.Kind, c.Path)
	}
}

// Plan maps changes to a deduplicated, sorted action list.
// It is a pure function of its input.
func Plan(changes []domain.Change) ([]domain.Action, error) {
	seen := make(map[domain.Action]struct{})
	actions := make([]domain.Action, 0, len(changes))

	for _, c := range changes {
		expanded, err := ActionsFor(c)
		if err != nil {
			return nil, err
		}
		for _, a := range expanded {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			actions = append(actions, a)
		}
	}

	SortActions(actions)
	return actions, nil
}

// SortActions orders actions by phase, then by depth (deepest first for
// folder deletion, shallowest first otherwise), then by path
func SortActions(actions []domain.Action) {
	sort.Slice(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]

		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}

		depthA, depthB := domain.Depth(a.Path), domain.Depth(b.Path)
		if depthA != depthB {
			if a.Kind == domain.DeleteFolder {
				return depthA > depthB
			}
			return depthA < depthB
		}

		return a.Path < b.Path
	})
}
