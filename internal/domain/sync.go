package domain

import (
	"fmt"
	"time"
)

// ChangeKind classifies one relative path after comparing source and target.
// Exactly one kind is assigned per path in source ∪ target.
type ChangeKind int

const (
	NewFile ChangeKind = iota
	NewFolder
	ChangedFile
	// ChangedFile2Folder: the target holds a file where the source holds a folder
	ChangedFile2Folder
	// ChangedFolder2File: the target holds a folder where the source holds a file
	ChangedFolder2File
	UnchangedFile
	UnchangedFolder
	RemovedFile
	RemovedFolder
)

// ChangeKinds lists every change kind in declaration order
var ChangeKinds = []ChangeKind{
	NewFile, NewFolder, ChangedFile, ChangedFile2Folder, ChangedFolder2File,
	UnchangedFile, UnchangedFolder, RemovedFile, RemovedFolder,
}

// String returns the string representation of the change kind
func (k ChangeKind) String() string {
	switch k {
	case NewFile:
		return "new_file"
	case NewFolder:
		return "new_folder"
	case ChangedFile:
		return "changed_file"
	case ChangedFile2Folder:
		return "changed_file_to_folder"
	case ChangedFolder2File:
		return "changed_folder_to_file"
	case UnchangedFile:
		return "unchanged_file"
	case UnchangedFolder:
		return "unchanged_folder"
	case RemovedFile:
		return "removed_file"
	case RemovedFolder:
		return "removed_folder"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// MarshalText lets change kinds key JSON and YAML maps
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsUnchanged reports whether the kind needs no action
func (k ChangeKind) IsUnchanged() bool {
	return k == UnchangedFile || k == UnchangedFolder
}

// Change is the classification of one relative path
type Change struct {
	Path string
	Kind ChangeKind
}

// ActionKind is a primitive filesystem operation on the target.
// Kinds are declared in execution phase order.
type ActionKind int

const (
	DeleteFile ActionKind = iota
	DeleteFolder
	CreateFolder
	CopyFile
)

// ActionKinds lists every action kind in phase order
var ActionKinds = []ActionKind{DeleteFile, DeleteFolder, CreateFolder, CopyFile}

// String returns the string representation of the action kind
func (k ActionKind) String() string {
	switch k {
	case DeleteFile:
		return "delete_file"
	case DeleteFolder:
		return "delete_folder"
	case CreateFolder:
		return "create_folder"
	case CopyFile:
		return "copy_file"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// MarshalText lets action kinds key JSON and YAML maps
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Action is a single operation in a sync plan
type Action struct {
	Kind ActionKind
	Path string
}

func (a Action) String() string {
	return a.Kind.String() + " " + a.Path
}

// ChangeStats counts changes per kind
type ChangeStats map[ChangeKind]int

// ActionStats counts actions per kind
type ActionStats map[ActionKind]int

// Total returns the sum of all counters
func (s ActionStats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Plan is the complete, not yet executed result of comparing two trees
type Plan struct {
	// RunID identifies the run in logs and history
	RunID string

	// Source and Target are the absolute roots
	Source string
	Target string

	// Changes holds one entry per compared path, sorted by path
	Changes []Change

	// Actions holds the deduplicated actions sorted by phase, depth, then path
	Actions []Action

	// SourceSnapshot is needed by the executor for copy metadata
	SourceSnapshot *Snapshot

	// InvalidSource lists invalid entries in the source; they are never synced
	InvalidSource []string

	// InvalidTarget lists invalid entries in the target
	InvalidTarget []string

	// Failures holds per-path comparison errors; those paths are not planned
	Failures []*PathError

	// CreatedAt is when planning started
	CreatedAt time.Time
}

// ChangeStats summarizes Changes
func (p *Plan) ChangeStats() ChangeStats {
	stats := make(ChangeStats)
	for _, c := range p.Changes {
		stats[c.Kind]++
	}
	return stats
}

// ActionStats summarizes Actions
func (p *Plan) ActionStats() ActionStats {
	stats := make(ActionStats)
	for _, a := range p.Actions {
		stats[a.Kind]++
	}
	return stats
}

// ActionsOf returns the paths of all actions of one kind, in plan order
func (p *Plan) ActionsOf(kind ActionKind) []string {
	var paths []string
	for _, a := range p.Actions {
		if a.Kind == kind {
			paths = append(paths, a.Path)
		}
	}
	return paths
}

// HasWork reports whether executing the plan would touch the target
func (p *Plan) HasWork() bool {
	return len(p.Actions) > 0 || len(p.InvalidTarget) > 0
}

// SyncReport is the outcome of one sync run
type SyncReport struct {
	RunID  string
	Source string
	Target string

	// Changes counts detected changes per kind
	Changes ChangeStats

	// Planned counts planned actions per kind
	Planned ActionStats

	// Applied counts successfully applied actions per kind
	Applied ActionStats

	// BytesCopied is the total size of copied files
	BytesCopied int64

	// InvalidSource and InvalidTarget list invalid entries found during the scan
	InvalidSource []string
	InvalidTarget []string

	// InvalidRemoved counts invalid target entries that were removed
	InvalidRemoved int

	// Skipped counts actions not attempted because of fail-fast
	Skipped int

	// Failures holds every per-path failure, comparison and execution alike
	Failures []*PathError

	// Executed is false when the plan was declined or only previewed
	Executed bool

	Elapsed time.Duration
}

// NewSyncReport creates a report seeded from a plan
func NewSyncReport(plan *Plan) *SyncReport {
	failures := make([]*PathError, len(plan.Failures))
	copy(failures, plan.Failures)
	return &SyncReport{
		RunID:         plan.RunID,
		Source:        plan.Source,
		Target:        plan.Target,
		Changes:       plan.ChangeStats(),
		Planned:       plan.ActionStats(),
		Applied:       make(ActionStats),
		InvalidSource: plan.InvalidSource,
		InvalidTarget: plan.InvalidTarget,
		Failures:      failures,
	}
}

// OK reports whether the run finished without per-path failures
func (r *SyncReport) OK() bool {
	return len(r.Failures) == 0
}
