// Package sink writes byte streams to a destination store atomically.
//
// A Write either publishes the complete stream at destPath or leaves
// destPath as it was. Partially written data is never visible under
// destPath.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

var (
	// ErrSinkUnavailable means the destination base, bucket or connection
	// cannot be used at all.
	ErrSinkUnavailable = errors.New("sink unavailable")
	// ErrIOFailure is any other write, rename or length failure.
	ErrIOFailure = errors.New("sink i/o failure")
	// ErrQuotaExceeded means the destination is out of space or quota.
	ErrQuotaExceeded = errors.New("sink quota exceeded")
	// ErrResumeUnsupported is returned for a non-zero write offset.
	ErrResumeUnsupported = errors.New("resume unsupported")
)

// Metadata keys always supplied by the relay.
const (
	MetaSource = "source"
	MetaSize   = "size"
	MetaMtime  = "mtime"
)

// Sink durably stores a stream under a destination name.
type Sink interface {
	// Write copies r to destPath. A length >= 0 must equal the number of
	// bytes r yields. metadata is stored alongside the object when the
	// backend supports it. It returns the number of bytes written.
	Write(ctx context.Context, destPath string, r io.Reader, offset, length int64, metadata map[string]string) (int64, error)
}

// Hasher is implemented by sinks that can read back what they stored.
type Hasher interface {
	// Hash returns the hex BLAKE3 digest of the content at destPath.
	Hash(ctx context.Context, destPath string) (string, error)
}

func checkOffset(offset int64) error {
	switch {
	case offset > 0:
		return fmt.Errorf("%w: offset %d", ErrResumeUnsupported, offset)
	case offset < 0:
		return fmt.Errorf("%w: negative offset %d", ErrIOFailure, offset)
	}
	return nil
}

// stagingName returns the sibling temp name used while writing base.
func stagingName(base string) string {
	return fmt.Sprintf(".%s.%s.relay-tmp", base, uuid.New().String()[:8])
}
