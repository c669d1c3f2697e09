// Package source enumerates files at a feed's source location and opens
// them for reading.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bamsammich/relay/internal/model"
)

var (
	// ErrSourceUnavailable means the configured location cannot be
	// enumerated: missing, not a directory, or unreachable.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceGone means a listed file disappeared before it was opened.
	ErrSourceGone = errors.New("source file gone")
	// ErrRangeUnavailable means the requested offset lies outside the file.
	ErrRangeUnavailable = errors.New("range unavailable")
)

// Provider lists and opens files for a feed.
type Provider interface {
	// List returns a lazy, single-pass sequence of regular files under the
	// feed's source that pass its include/exclude patterns. Order is
	// unspecified. The caller must Close the iterator.
	List(ctx context.Context, feed model.Feed) (Iterator, error)
	// Open returns a stream positioned at offset. The caller must close it.
	Open(ctx context.Context, d model.FileDescriptor, offset int64) (io.ReadCloser, error)
}

// Iterator is a pull-based descriptor sequence.
//
//	it, err := p.List(ctx, feed)
//	...
//	defer it.Close()
//	for it.Next() {
//		d := it.Descriptor()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	Next() bool
	Descriptor() model.FileDescriptor
	// Err reports the error that ended iteration, if any. It is only
	// meaningful after Next returns false.
	Err() error
	// Close releases the underlying walk. It is safe to call more than once.
	Close() error
}

func checkRange(d model.FileDescriptor, offset int64) error {
	if offset < 0 || offset > d.SizeBytes {
		return fmt.Errorf("%w: offset %d, size %d: %s", ErrRangeUnavailable, offset, d.SizeBytes, d.SourcePath)
	}
	return nil
}
