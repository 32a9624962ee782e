package adapter

import (
	"context"
	"io"

	"github.com/Ning0612/foldersync/internal/domain"
)

// Adapter is one sync root. All paths are slash-separated and relative to
// the root; implementations reject paths that escape it.
type Adapter interface {
	// Root returns the absolute root path
	Root() string

	// Walk enumerates every entry below the root, root excluded.
	// Entries that are neither files nor directories are returned with
	// Type domain.EntryInvalid.
	Walk(ctx context.Context) ([]domain.Entry, error)

	// Stat classifies a single path
	Stat(path string) (domain.Entry, error)

	// Open opens a file for reading; the caller closes it
	Open(path string) (io.ReadCloser, error)

	// Remove deletes a file, an empty directory or an invalid entry
	Remove(path string) error

	// Mkdir creates a single directory; the parent must exist
	Mkdir(path string) error

	// WriteFile writes r to path through a temporary file and applies the
	// permission bits and modification time of meta. Returns bytes written.
	WriteFile(path string, r io.Reader, meta domain.Entry) (int64, error)
}
