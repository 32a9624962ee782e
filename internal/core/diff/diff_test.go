package diff

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/foldersync/internal/adapter/local"
	"github.com/Ning0612/foldersync/internal/core/checksum"
	"github.com/Ning0612/foldersync/internal/domain"
)

var mtime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func memTree(t *testing.T, root string, files map[string]string) *local.Tree {
	t.Helper()

	fsys := afero.NewMemMapFs()
	fsys.MkdirAll(root, 0755)
	for path, content := range files {
		full := root + "/" + path
		if err := afero.WriteFile(fsys, full, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		fsys.Chtimes(full, mtime, mtime)
	}

	tree, err := local.New(fsys, root)
	if err != nil {
		t.Fatalf("local.New failed: %v", err)
	}
	return tree
}

func file(t *testing.T, tree *local.Tree, path string) File {
	t.Helper()

	entry, err := tree.Stat(path)
	if err != nil {
		t.Fatalf("Stat(%s) failed: %v", path, err)
	}
	return File{Tree: tree, Entry: entry}
}

func TestNewComparer(t *testing.T) {
	tests := []struct {
		depth   Depth
		algo    checksum.Algorithm
		wantErr bool
	}{
		{DepthShallow, "", false},
		{DepthDeep, "", false},
		{DepthChecksum, checksum.XXHash, false},
		{DepthChecksum, checksum.SHA256, false},
		{DepthChecksum, "crc32", true},
		{Depth("fuzzy"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.depth)+"/"+string(tt.algo), func(t *testing.T) {
			_, err := NewComparer(tt.depth, tt.algo)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewComparer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComparers(t *testing.T) {
	src := memTree(t, "/src", map[string]string{
		"same.txt":     "identical content",
		"samesize.txt": "aaaa",
		"longer.txt":   "short",
		"big.bin":      strings.Repeat("x", 3*blockSize+17),
	})
	tgt := memTree(t, "/tgt", map[string]string{
		"same.txt":     "identical content",
		"samesize.txt": "aaab",
		"longer.txt":   "much longer",
		"big.bin":      strings.Repeat("x", 3*blockSize+16) + "y",
	})

	tests := []struct {
		path    string
		shallow bool
		content bool
	}{
		{"same.txt", true, true},
		// same size and mtime: only a content comparison notices
		{"samesize.txt", true, false},
		{"longer.txt", false, false},
		{"big.bin", true, false},
	}

	xx, _ := NewComparer(DepthChecksum, checksum.XXHash)
	md, _ := NewComparer(DepthChecksum, checksum.MD5)
	comparers := map[string]Comparer{
		"shallow": ShallowComparer{},
		"deep":    DeepComparer{},
		"xxhash":  xx,
		"md5":     md,
	}

	for name, cmp := range comparers {
		for _, tt := range tests {
			t.Run(name+"/"+tt.path, func(t *testing.T) {
				got, err := cmp.Equal(context.Background(), file(t, src, tt.path), file(t, tgt, tt.path))
				if err != nil {
					t.Fatalf("Equal failed: %v", err)
				}
				want := tt.content
				if name == "shallow" {
					want = tt.shallow
				}
				if got != want {
					t.Errorf("Equal = %v, want %v", got, want)
				}
			})
		}
	}
}

func TestShallowComparer_ModTime(t *testing.T) {
	a := File{Entry: domain.Entry{Size: 1, ModTime: mtime}}
	b := File{Entry: domain.Entry{Size: 1, ModTime: mtime.Add(time.Second)}}

	if eq, _ := (ShallowComparer{}).Equal(context.Background(), a, b); eq {
		t.Error("files with different mtimes should differ")
	}

	// same instant in another zone
	c := File{Entry: domain.Entry{Size: 1, ModTime: mtime.In(time.FixedZone("X", 3600))}}
	if eq, _ := (ShallowComparer{}).Equal(context.Background(), a, c); !eq {
		t.Error("equal instants should compare equal")
	}
}

func TestDeepComparer_OpenError(t *testing.T) {
	src := memTree(t, "/src", map[string]string{"a.txt": "abc"})
	tgt := memTree(t, "/tgt", map[string]string{"a.txt": "abc"})

	missing := File{Tree: tgt, Entry: domain.Entry{Path: "gone.txt", Size: 3}}
	if _, err := (DeepComparer{}).Equal(context.Background(), file(t, src, "a.txt"), missing); err == nil {
		t.Error("expected error opening a missing file")
	}
}

func TestClassify(t *testing.T) {
	f := &domain.Entry{Type: domain.EntryFile}
	d := &domain.Entry{Type: domain.EntryDir}

	tests := []struct {
		name  string
		src   *domain.Entry
		tgt   *domain.Entry
		equal bool
		want  domain.ChangeKind
	}{
		{"removed file", nil, f, false, domain.RemovedFile},
		{"removed folder", nil, d, false, domain.RemovedFolder},
		{"new file", f, nil, false, domain.NewFile},
		{"new folder", d, nil, false, domain.NewFolder},
		{"unchanged file", f, f, true, domain.UnchangedFile},
		{"changed file", f, f, false, domain.ChangedFile},
		{"target file becomes folder", d, f, false, domain.ChangedFile2Folder},
		{"target folder becomes file", f, d, false, domain.ChangedFolder2File},
		{"unchanged folder", d, d, false, domain.UnchangedFolder},
		{"equal ignored for folders", d, d, true, domain.UnchangedFolder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.src, tt.tgt, tt.equal)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := Classify(nil, nil, false); !errors.Is(err, domain.ErrUnknownChange) {
		t.Errorf("expected ErrUnknownChange, got %v", err)
	}
}

// unreadable wraps a tree and fails to open one path
type unreadable struct {
	*local.Tree
	path string
}

func (u unreadable) Open(path string) (io.ReadCloser, error) {
	if path == u.path {
		return nil, errors.New("permission denied")
	}
	return u.Tree.Open(path)
}
