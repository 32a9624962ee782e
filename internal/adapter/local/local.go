package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Ning0612/foldersync/internal/domain"
)

// DirPerm is used for every directory created in a target tree
const DirPerm fs.FileMode = 0755

// Tree implements adapter.Adapter on top of an afero filesystem
type Tree struct {
	fs   afero.Fs
	root string
}

// New creates a tree rooted at root.
// The root must exist and be a directory; a missing root is a precondition
// failure, never treated as empty.
func New(fsys afero.Fs, root string) (*Tree, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := fsys.Stat(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRootNotFound, absRoot)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotDirectory, absRoot)
	}

	return &Tree{fs: fsys, root: absRoot}, nil
}

// NewOS creates a tree on the host filesystem
func NewOS(root string) (*Tree, error) {
	return New(afero.NewOsFs(), root)
}

// Root returns the absolute root path
func (t *Tree) Root() string {
	return t.root
}

// resolvePath safely resolves a relative path to an absolute path within root
func (t *Tree) resolvePath(relPath string) (string, error) {
	if relPath == "" || relPath == "." {
		return t.root, nil
	}

	relPath = filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("absolute path not allowed: %s", relPath)
	}

	fullPath := filepath.Join(t.root, relPath)
	rel, err := filepath.Rel(t.root, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %s", relPath)
	}
	return fullPath, nil
}

// Walk enumerates every entry below the root
func (t *Tree) Walk(ctx context.Context) ([]domain.Entry, error) {
	var entries []domain.Entry

	err := afero.Walk(t.fs, t.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == t.root {
			return nil
		}

		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}

		entries = append(entries, t.classify(filepath.ToSlash(rel), path, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", t.root, err)
	}

	return entries, nil
}

// Stat classifies a single path without following directory symlinks
func (t *Tree) Stat(path string) (domain.Entry, error) {
	fullPath, err := t.resolvePath(path)
	if err != nil {
		return domain.Entry{}, err
	}

	info, err := t.lstat(fullPath)
	if err != nil {
		return domain.Entry{}, err
	}
	return t.classify(path, fullPath, info), nil
}

// Open opens a file for reading
func (t *Tree) Open(path string) (io.ReadCloser, error) {
	fullPath, err := t.resolvePath(path)
	if err != nil {
		return nil, err
	}
	return t.fs.Open(fullPath)
}

// Remove deletes a file, an empty directory or an invalid entry
func (t *Tree) Remove(path string) error {
	fullPath, err := t.resolvePath(path)
	if err != nil {
		return err
	}
	return t.fs.Remove(fullPath)
}

// Mkdir creates a single directory
func (t *Tree) Mkdir(path string) error {
	fullPath, err := t.resolvePath(path)
	if err != nil {
		return err
	}
	return t.fs.Mkdir(fullPath, DirPerm)
}

// WriteFile writes r to path via a temporary file in the same directory, then
// applies permissions and modification time before renaming into place
func (t *Tree) WriteFile(path string, r io.Reader, meta domain.Entry) (int64, error) {
	fullPath, err := t.resolvePath(path)
	if err != nil {
		return 0, err
	}

	tmp, err := afero.TempFile(t.fs, filepath.Dir(fullPath), ".foldersync-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()

	if err := errors.Join(copyErr, closeErr); err != nil {
		t.fs.Remove(tmpPath)
		return written, err
	}

	// Chtimes goes last: writing and closing both touch the modification time
	if err := t.fs.Chmod(tmpPath, meta.Mode.Perm()); err != nil {
		t.fs.Remove(tmpPath)
		return written, err
	}
	if err := t.fs.Chtimes(tmpPath, meta.ModTime, meta.ModTime); err != nil {
		t.fs.Remove(tmpPath)
		return written, err
	}

	if err := t.fs.Rename(tmpPath, fullPath); err != nil {
		t.fs.Remove(tmpPath)
		return written, err
	}

	return written, nil
}

func (t *Tree) lstat(fullPath string) (os.FileInfo, error) {
	if lst, ok := t.fs.(afero.Lstater); ok {
		info, _, err := lst.LstatIfPossible(fullPath)
		return info, err
	}
	return t.fs.Stat(fullPath)
}

// classify converts lstat information into a domain entry.
// Symlinks count as files when they resolve to a regular file; every other
// symlink, like devices, sockets and fifos, is invalid.
func (t *Tree) classify(relPath, fullPath string, info os.FileInfo) domain.Entry {
	entry := domain.Entry{
		Path:    relPath,
		Type:    domain.EntryInvalid,
		ModTime: info.ModTime(),
		Mode:    info.Mode().Perm(),
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		entry.Type = domain.EntryDir
	case mode.IsRegular():
		entry.Type = domain.EntryFile
		entry.Size = info.Size()
	case mode&fs.ModeSymlink != 0:
		resolved, err := t.fs.Stat(fullPath)
		if err == nil && resolved.Mode().IsRegular() {
			entry.Type = domain.EntryFile
			entry.Size = resolved.Size()
			entry.ModTime = resolved.ModTime()
			entry.Mode = resolved.Mode().Perm()
		}
	}

	return entry
}
