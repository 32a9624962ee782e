// Package testutil builds directory trees for tests and compares them.
package testutil

import (
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// Tree describes a directory tree by slash-separated relative path.
// Keys ending in "/" are directories; other keys are files holding the value.
type Tree map[string]string

// DefaultModTime is applied to every file written by WriteTree
var DefaultModTime = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

// TempDir creates a temporary directory removed when the test ends
func TempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "foldersync-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// WriteTree creates tree below root. Parent directories are created as needed.
func WriteTree(t *testing.T, root string, tree Tree) {
	t.Helper()

	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(p, "/")))
		if strings.HasSuffix(p, "/") {
			if err := os.MkdirAll(full, 0755); err != nil {
				t.Fatalf("failed to create dir %s: %v", p, err)
			}
			continue
		}
		CreateTestFile(t, root, p, []byte(tree[p]))
	}
}

// CreateTestFile creates a file with the given content and DefaultModTime
func CreateTestFile(t *testing.T, root, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent of %s: %v", name, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	SetModTime(t, path, DefaultModTime)
	return path
}

// CreateTestFileWithSize creates a file with random content of the given size
func CreateTestFileWithSize(t *testing.T, root, name string, size int64) string {
	t.Helper()

	buf := make([]byte, size)
	rand.Read(buf)
	return CreateTestFile(t, root, name, buf)
}

// SetModTime sets the access and modification time of path
func SetModTime(t *testing.T, path string, mtime time.Time) {
	t.Helper()

	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime of %s: %v", path, err)
	}
}

// ReadTree reads the tree below root in WriteTree notation
func ReadTree(t *testing.T, root string) Tree {
	t.Helper()

	tree := make(Tree)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			tree[rel+"/"] = ""
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read tree %s: %v", root, err)
	}
	return tree
}

// AssertTree fails the test unless root holds exactly want
func AssertTree(t *testing.T, root string, want Tree) {
	t.Helper()

	got := ReadTree(t, root)
	for p, content := range want {
		g, ok := got[p]
		if !ok {
			t.Errorf("%s: missing", p)
			continue
		}
		if g != content {
			t.Errorf("%s: content %q, want %q", p, g, content)
		}
	}
	for p := range got {
		if _, ok := want[p]; !ok {
			t.Errorf("%s: unexpected entry", p)
		}
	}
}

// AssertIdenticalTrees fails the test unless both roots hold the same
// entries, file contents, permission bits and file modification times
func AssertIdenticalTrees(t *testing.T, a, b string) {
	t.Helper()

	AssertTree(t, b, ReadTree(t, a))

	for p := range ReadTree(t, a) {
		if strings.HasSuffix(p, "/") {
			continue
		}
		ia, errA := os.Stat(filepath.Join(a, filepath.FromSlash(p)))
		ib, errB := os.Stat(filepath.Join(b, filepath.FromSlash(p)))
		if errA != nil || errB != nil {
			continue
		}
		if ia.Mode().Perm() != ib.Mode().Perm() {
			t.Errorf("%s: mode %v, want %v", p, ib.Mode().Perm(), ia.Mode().Perm())
		}
		if !ia.ModTime().Equal(ib.ModTime()) {
			t.Errorf("%s: mtime %v, want %v", p, ib.ModTime(), ia.ModTime())
		}
	}
}
