package relay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/relay/internal/sink"
)

// ErrVerifyMismatch means the stored content does not hash to what was
// streamed.
var ErrVerifyMismatch = errors.New("verification mismatch")

// verifier hashes bytes as they stream to the sink and later compares
// against the sink's read-back digest.
type verifier struct {
	h      *blake3.Hasher
	hasher sink.Hasher
}

// newVerifier returns nil when dst cannot read back.
func newVerifier(dst sink.Sink) *verifier {
	hasher, ok := dst.(sink.Hasher)
	if !ok {
		return nil
	}
	return &verifier{h: blake3.New(), hasher: hasher}
}

func (v *verifier) wrap(r io.Reader) io.Reader {
	return io.TeeReader(r, v.h)
}

func (v *verifier) check(ctx context.Context, destPath string) error {
	want := hex.EncodeToString(v.h.Sum(nil))
	got, err := v.hasher.Hash(ctx, destPath)
	if err != nil {
		return fmt.Errorf("verify %s: %w", destPath, err)
	}
	if got != want {
		return fmt.Errorf("%w: %s: streamed %s, stored %s", ErrVerifyMismatch, destPath, want, got)
	}
	return nil
}
