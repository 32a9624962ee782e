package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 algorithm, kept for parity with older setups
	MD5 Algorithm = "md5"
	// SHA256 algorithm
	SHA256 Algorithm = "sha256"
	// XXHash is the 64-bit xxHash; not cryptographic, but the fastest option
	// for detecting content changes
	XXHash Algorithm = "xxhash"
)

// Algorithms lists every supported algorithm
var Algorithms = []Algorithm{MD5, SHA256, XXHash}

// Options configures the checksum calculator
type Options struct {
	// MaxSize: inputs larger than this fail instead of being hashed (0 = unlimited)
	MaxSize int64

	// BufferSize: size of buffer for streaming reads
	BufferSize int
}

// DefaultOptions returns options suitable for content comparison:
// no size limit and a 64KB read buffer
func DefaultOptions() Options {
	return Options{
		MaxSize:    0,
		BufferSize: 64 * 1024,
	}
}

// Calculator computes checksums of streamed content
type Calculator interface {
	// Calculate computes the hex checksum of everything read from reader
	Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error)
}

// DefaultCalculator implements Calculator with streaming support
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case XXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}

// Calculate implements the Calculator interface.
// Context cancellation is checked between reads.
func (c *DefaultCalculator) Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	src := reader
	if c.opts.MaxSize > 0 {
		src = io.LimitReader(reader, c.opts.MaxSize+1)
	}

	buffer := make([]byte, c.opts.BufferSize)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := src.Read(buffer)
		if n > 0 {
			total += int64(n)
			if c.opts.MaxSize > 0 && total > c.opts.MaxSize {
				return "", fmt.Errorf("input exceeds maximum size (%d bytes)", c.opts.MaxSize)
			}
			// hash.Hash.Write never returns an error
			h.Write(buffer[:n])
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	for _, a := range Algorithms {
		if a == algo {
			return true
		}
	}
	return false
}
