package domain

import (
	"io/fs"
	"strings"
	"time"
)

// EntryType represents the classification of a filesystem entry
type EntryType int

const (
	EntryFile EntryType = iota
	EntryDir
	// EntryInvalid covers devices, sockets, fifos, broken symlinks and
	// symlinks to directories. Invalid entries are never synced.
	EntryInvalid
)

// String returns the string representation of the entry type
func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	case EntryInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Entry represents metadata about a file or directory below a sync root
type Entry struct {
	// Path is the slash-separated path relative to the root
	Path string

	// Type indicates if this is a file, directory, or invalid entry
	Type EntryType

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time

	// Mode holds the permission bits
	Mode fs.FileMode
}

// IsDir returns true if this is a directory
func (e Entry) IsDir() bool {
	return e.Type == EntryDir
}

// IsFile returns true if this is a regular file
func (e Entry) IsFile() bool {
	return e.Type == EntryFile
}

// Snapshot is the classified content of one tree at scan time
type Snapshot struct {
	// Root is the absolute root path the snapshot was taken from
	Root string

	// Entries holds every valid entry keyed by relative path
	Entries map[string]Entry

	// Invalid lists relative paths of invalid entries, sorted
	Invalid []string
}

// NewSnapshot creates an empty snapshot for root
func NewSnapshot(root string) *Snapshot {
	return &Snapshot{
		Root:    root,
		Entries: make(map[string]Entry),
	}
}

// Depth returns the number of segments in a relative path ("a/b" has depth 2)
func Depth(path string) int {
	if path == "" || path == "." {
		return 0
	}
	return strings.Count(path, "/") + 1
}

// Parent returns the parent relative path, or "" for top-level entries
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Ancestors returns every ancestor of path, nearest first
func Ancestors(path string) []string {
	var out []string
	for p := Parent(path); p != ""; p = Parent(p) {
		out = append(out, p)
	}
	return out
}
