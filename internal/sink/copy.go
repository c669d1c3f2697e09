package sink

import (
	"context"
	"fmt"
	"io"
)

const DefaultBufferSize = 8192

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// copyExact copies r to w. When length >= 0 the stream must yield exactly
// length bytes; a short or long stream is an ErrIOFailure.
func copyExact(ctx context.Context, w io.Writer, r io.Reader, length int64, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	src := io.Reader(contextReader{ctx: ctx, r: r})
	if length >= 0 {
		// One extra byte is enough to detect a long stream.
		src = io.LimitReader(src, length+1)
	}

	n, err := io.CopyBuffer(onlyWriter{w}, src, make([]byte, bufSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, fmt.Errorf("%w: %w", ErrIOFailure, ctxErr)
		}
		return n, err
	}
	if length >= 0 && n != length {
		return n, fmt.Errorf("%w: expected %d bytes, stream had %d", ErrIOFailure, length, n)
	}
	return n, nil
}

// onlyWriter hides ReaderFrom so CopyBuffer uses the given buffer.
type onlyWriter struct {
	io.Writer
}
