// Package diff decides which Change applies to every path of two snapshots.
package diff

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Ning0612/foldersync/internal/adapter"
	"github.com/Ning0612/foldersync/internal/core/checksum"
	"github.com/Ning0612/foldersync/internal/domain"
)

// Depth selects how file contents are compared
type Depth string

const (
	// DepthShallow compares size and modification time only
	DepthShallow Depth = "shallow"
	// DepthDeep compares content byte by byte
	DepthDeep Depth = "deep"
	// DepthChecksum compares content hashes
	DepthChecksum Depth = "checksum"
)

// IsValid reports whether d names a known depth
func (d Depth) IsValid() bool {
	return d == DepthShallow || d == DepthDeep || d == DepthChecksum
}

// blockSize is the read size for deep comparison
const blockSize = 64 * 1024

// File is one side of a comparison
type File struct {
	Tree  adapter.Adapter
	Entry domain.Entry
}

// Comparer decides whether two files have equal content
type Comparer interface {
	Equal(ctx context.Context, src, tgt File) (bool, error)
}

// NewComparer returns the comparer for depth.
// algo is only used by DepthChecksum.
func NewComparer(depth Depth, algo checksum.Algorithm) (Comparer, error) {
	switch depth {
	case DepthShallow:
		return ShallowComparer{}, nil
	case DepthDeep:
		return DeepComparer{}, nil
	case DepthChecksum:
		if !checksum.IsSupported(algo) {
			return nil, fmt.Errorf("unsupported checksum algorithm: %s", algo)
		}
		return &ChecksumComparer{Calc: checksum.NewDefaultCalculator(), Algo: algo}, nil
	default:
		return nil, fmt.Errorf("unknown comparison depth: %q", depth)
	}
}

// ShallowComparer treats files with equal size and modification time as equal
type ShallowComparer struct{}

// Equal implements Comparer. ModTime.Equal ignores monotonic clock readings.
func (ShallowComparer) Equal(_ context.Context, src, tgt File) (bool, error) {
	return src.Entry.Size == tgt.Entry.Size && src.Entry.ModTime.Equal(tgt.Entry.ModTime), nil
}

// DeepComparer streams both files and compares them block by block
type DeepComparer struct{}

// Equal implements Comparer
func (DeepComparer) Equal(ctx context.Context, src, tgt File) (bool, error) {
	if src.Entry.Size != tgt.Entry.Size {
		return false, nil
	}

	a, err := src.Tree.Open(src.Entry.Path)
	if err != nil {
		return false, err
	}
	defer a.Close()

	b, err := tgt.Tree.Open(tgt.Entry.Path)
	if err != nil {
		return false, err
	}
	defer b.Close()

	bufA := make([]byte, blockSize)
	bufB := make([]byte, blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)
		if errA != nil && errA != io.EOF && errA != io.ErrUnexpectedEOF {
			return false, errA
		}
		if errB != nil && errB != io.EOF && errB != io.ErrUnexpectedEOF {
			return false, errB
		}

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		// a short read means both files ended at the same offset
		if errA != nil || errB != nil {
			return errA != nil && errB != nil, nil
		}
	}
}

// ChecksumComparer hashes both files with the same algorithm
type ChecksumComparer struct {
	Calc checksum.Calculator
	Algo checksum.Algorithm
}

// Equal implements Comparer
func (c *ChecksumComparer) Equal(ctx context.Context, src, tgt File) (bool, error) {
	if src.Entry.Size != tgt.Entry.Size {
		return false, nil
	}

	a, err := c.sum(ctx, src)
	if err != nil {
		return false, err
	}
	b, err := c.sum(ctx, tgt)
	if err != nil {
		return false, err
	}
	return a == b, nil
}

func (c *ChecksumComparer) sum(ctx context.Context, f File) (string, error) {
	rc, err := f.Tree.Open(f.Entry.Path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return c.Calc.Calculate(ctx, rc, c.Algo)
}
