package source_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/source"
)

func newFeed(t *testing.T, uri string, includes, excludes []string) model.Feed {
	t.Helper()
	f, err := model.NewFeed(model.FeedSpec{
		ID:              "feed-1",
		SourceURI:       uri,
		IncludePatterns: includes,
		ExcludePatterns: excludes,
		Active:          true,
	})
	require.NoError(t, err)
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, it source.Iterator) []model.FileDescriptor {
	t.Helper()
	defer it.Close()
	var out []model.FileDescriptor
	for it.Next() {
		out = append(out, it.Descriptor())
	}
	require.NoError(t, it.Err())
	return out
}

func list(t *testing.T, p source.Provider, feed model.Feed) []model.FileDescriptor {
	t.Helper()
	it, err := p.List(context.Background(), feed)
	require.NoError(t, err)
	return collect(t, it)
}

func TestLocalList_NoPatternsListsAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "test.txt"), "content")
	writeFile(t, filepath.Join(dir, "test.csv"), "data")

	got := list(t, source.NewLocalProvider(nil), newFeed(t, dir, nil, nil))
	require.Len(t, got, 2)

	sizes := map[string]int64{}
	for _, d := range got {
		sizes[d.RelPath] = d.SizeBytes
	}
	assert.Equal(t, map[string]int64{"test.txt": 7, "test.csv": 4}, sizes)
}

func TestLocalList_IncludeFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "test.txt"), "content")
	writeFile(t, filepath.Join(dir, "test.csv"), "data")

	got := list(t, source.NewLocalProvider(nil), newFeed(t, "file://"+dir, []string{"*.txt"}, nil))
	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(got[0].SourcePath, "test.txt"))
}

func TestLocalList_ExcludeBeatsInclude(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.txt"), "good")
	writeFile(t, filepath.Join(dir, "tmp", "bad.txt"), "bad")

	got := list(t, source.NewLocalProvider(nil),
		newFeed(t, dir, []string{"**/*.txt"}, []string{"**/tmp/**"}))
	require.Len(t, got, 1)
	assert.Equal(t, "good.txt", got[0].RelPath)
	assert.Equal(t, filepath.Join(dir, "good.txt"), got[0].SourcePath)
}

func TestLocalList_DirectoriesNotEmitted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b", "c"), 0o755))
	writeFile(t, filepath.Join(dir, "a", "b", "c", "deep.dat"), "x")

	got := list(t, source.NewLocalProvider(nil), newFeed(t, dir, nil, nil))
	require.Len(t, got, 1)
	assert.Equal(t, "a/b/c/deep.dat", got[0].RelPath)
}

func TestLocalList_SkipsSymlinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "real.txt"), "x")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")))

	got := list(t, source.NewLocalProvider(nil), newFeed(t, dir, nil, nil))
	require.Len(t, got, 1)
	assert.Equal(t, "real.txt", got[0].RelPath)
}

func TestLocalList_Mtime(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/in/a.txt", []byte("abc"), 0o644))
	mtime := time.UnixMilli(1_700_000_000_123)
	require.NoError(t, fsys.Chtimes("/in/a.txt", mtime, mtime))

	got := list(t, source.NewLocalProvider(fsys), newFeed(t, "/in", nil, nil))
	require.Len(t, got, 1)
	assert.Equal(t, int64(1_700_000_000_123), got[0].MtimeEpochMs)
	assert.Equal(t, int64(3), got[0].SizeBytes)
}

func TestLocalList_Unavailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	writeFile(t, file, "x")

	p := source.NewLocalProvider(nil)
	for _, uri := range []string{filepath.Join(dir, "missing"), file, "gs://bucket/x"} {
		_, err := p.List(context.Background(), newFeed(t, uri, nil, nil))
		require.ErrorIs(t, err, source.ErrSourceUnavailable, uri)
	}
}

func TestLocalList_CloseStopsWalk(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	for i := range 50 {
		require.NoError(t, afero.WriteFile(fsys, fmt.Sprintf("/in/f%02d", i), []byte("x"), 0o644))
	}

	it, err := source.NewLocalProvider(fsys).List(context.Background(), newFeed(t, "/in", nil, nil))
	require.NoError(t, err)
	require.True(t, it.Next())
	require.NoError(t, it.Close())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.NoError(t, it.Close(), "second close")
}

func TestLocalList_ContextCancel(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	for _, name := range []string{"/in/a", "/in/b", "/in/c"} {
		require.NoError(t, afero.WriteFile(fsys, name, []byte("x"), 0o644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	it, err := source.NewLocalProvider(fsys).List(ctx, newFeed(t, "/in", nil, nil))
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	cancel()
	for it.Next() { //nolint:revive // drain whatever was already in flight
	}
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestLocalOpen(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/in/hello.txt", []byte("Hello, world!"), 0o644))
	p := source.NewLocalProvider(fsys)
	d := model.FileDescriptor{SourcePath: "/in/hello.txt", SizeBytes: 13}

	rc, err := p.Open(context.Background(), d, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "Hello, world!", string(data))

	rc, err = p.Open(context.Background(), d, 7)
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "world!", string(data))

	rc, err = p.Open(context.Background(), d, 13)
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Empty(t, data)
}

func TestLocalOpen_Errors(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/in/a", []byte("abc"), 0o644))
	p := source.NewLocalProvider(fsys)

	_, err := p.Open(context.Background(), model.FileDescriptor{SourcePath: "/in/a", SizeBytes: 3}, 4)
	require.ErrorIs(t, err, source.ErrRangeUnavailable)

	_, err = p.Open(context.Background(), model.FileDescriptor{SourcePath: "/in/a", SizeBytes: 3}, -1)
	require.ErrorIs(t, err, source.ErrRangeUnavailable)

	// File shrank since listing.
	_, err = p.Open(context.Background(), model.FileDescriptor{SourcePath: "/in/a", SizeBytes: 10}, 5)
	require.ErrorIs(t, err, source.ErrRangeUnavailable)

	_, err = p.Open(context.Background(), model.FileDescriptor{SourcePath: "/in/gone", SizeBytes: 3}, 0)
	require.ErrorIs(t, err, source.ErrSourceGone)
}
