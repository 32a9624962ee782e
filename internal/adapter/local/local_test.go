package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/foldersync/internal/domain"
)

func memTree(t *testing.T) *Tree {
	t.Helper()

	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/root/a/b", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := afero.WriteFile(fsys, "/root/a/b/file.txt", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := afero.WriteFile(fsys, "/root/top.txt", []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tree, err := New(fsys, "/root")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tree
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), "/does/not/exist")
	if !errors.Is(err, domain.ErrRootNotFound) {
		t.Errorf("expected ErrRootNotFound, got %v", err)
	}
}

func TestNew_RootIsFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/file", []byte("x"), 0644)

	_, err := New(fsys, "/file")
	if !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}
}

func TestWalk_ClassifiesEntries(t *testing.T) {
	tree := memTree(t)

	entries, err := tree.Walk(context.Background())
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	got := make(map[string]domain.Entry)
	for _, e := range entries {
		got[e.Path] = e
	}

	want := map[string]domain.EntryType{
		"a":            domain.EntryDir,
		"a/b":          domain.EntryDir,
		"a/b/file.txt": domain.EntryFile,
		"top.txt":      domain.EntryFile,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(got), got)
	}
	for path, typ := range want {
		e, ok := got[path]
		if !ok {
			t.Errorf("missing entry %s", path)
			continue
		}
		if e.Type != typ {
			t.Errorf("%s: expected %v, got %v", path, typ, e.Type)
		}
	}
	if got["a/b/file.txt"].Size != 5 {
		t.Errorf("expected size 5, got %d", got["a/b/file.txt"].Size)
	}
}

func TestWalk_Cancelled(t *testing.T) {
	tree := memTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tree.Walk(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResolvePath_RejectsEscape(t *testing.T) {
	tree := memTree(t)

	tests := []string{"../outside", "a/../../outside", "/etc/passwd"}
	for _, p := range tests {
		t.Run(p, func(t *testing.T) {
			if _, err := tree.resolvePath(p); err == nil {
				t.Errorf("expected error for %q", p)
			}
		})
	}

	if _, err := tree.resolvePath("a/..b"); err != nil {
		t.Errorf("unexpected error for a/..b: %v", err)
	}
}

func TestWriteFile_PreservesMetadata(t *testing.T) {
	tree := memTree(t)
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	n, err := tree.WriteFile("a/copy.txt", bytes.NewReader([]byte("content")), domain.Entry{
		Mode:    0640,
		ModTime: mtime,
	})
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 bytes written, got %d", n)
	}

	entry, err := tree.Stat("a/copy.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !entry.ModTime.Equal(mtime) {
		t.Errorf("expected mtime %v, got %v", mtime, entry.ModTime)
	}
	if entry.Mode != 0640 {
		t.Errorf("expected mode 0640, got %v", entry.Mode)
	}

	rc, err := tree.Open("a/copy.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "content" {
		t.Errorf("unexpected content %q", data)
	}

	// no temporary files left behind
	names, _ := afero.ReadDir(tree.fs, "/root/a")
	for _, info := range names {
		if filepath.Ext(info.Name()) == ".tmp" {
			t.Errorf("temporary file left behind: %s", info.Name())
		}
	}
}

func TestMkdirRemove(t *testing.T) {
	dir := t.TempDir()
	tree, err := NewOS(dir)
	if err != nil {
		t.Fatalf("NewOS failed: %v", err)
	}

	if err := tree.Mkdir("x/y"); err == nil {
		t.Error("expected error creating a folder without its parent")
	}
	if err := tree.Mkdir("x"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := tree.Mkdir("x/y"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := tree.Remove("x"); err == nil {
		t.Error("expected error removing a non-empty folder")
	}
	if err := tree.Remove("x/y"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := tree.Remove("x"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := tree.Stat("x"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected x to be gone, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "x")); !os.IsNotExist(err) {
		t.Errorf("expected x removed on disk, got %v", err)
	}
}
