package relay

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/relay/internal/sink"
)

type writeOnlySink struct{}

func (writeOnlySink) Write(_ context.Context, _ string, r io.Reader, _, _ int64, _ map[string]string) (int64, error) {
	return io.Copy(io.Discard, r)
}

func TestNewVerifier_RequiresHasher(t *testing.T) {
	t.Parallel()
	assert.Nil(t, newVerifier(writeOnlySink{}))
	assert.NotNil(t, newVerifier(sink.NewLocalSink(t.TempDir())))
}

func TestVerifier_Check(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dst := sink.NewLocalSink(t.TempDir())

	v := newVerifier(dst)
	require.NotNil(t, v)
	_, err := dst.Write(ctx, "a.txt", v.wrap(strings.NewReader("payload")), 0, 7, nil)
	require.NoError(t, err)
	require.NoError(t, v.check(ctx, "a.txt"))

	// A fresh verifier that streamed different bytes must not match.
	other := newVerifier(dst)
	_, err = io.Copy(io.Discard, other.wrap(strings.NewReader("different")))
	require.NoError(t, err)
	assert.ErrorIs(t, other.check(ctx, "a.txt"), ErrVerifyMismatch)
}

func TestVerifier_MissingDestination(t *testing.T) {
	t.Parallel()
	v := newVerifier(sink.NewLocalSink(t.TempDir()))
	err := v.check(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVerifyMismatch)
}
