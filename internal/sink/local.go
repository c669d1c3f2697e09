package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// DefaultLocalPath is the base directory used when none is configured.
const DefaultLocalPath = "/tmp/relay-sink"

const xattrPrefix = "user.relay."

var (
	_ Sink   = (*LocalSink)(nil)
	_ Hasher = (*LocalSink)(nil)
)

// LocalSink writes files under a base directory.
type LocalSink struct {
	fs      afero.Fs
	base    string
	bufSize int
	xattrs  bool
}

// LocalOption configures a LocalSink.
type LocalOption func(*LocalSink)

// WithFs replaces the OS filesystem. Metadata xattrs are only written on
// the OS filesystem.
func WithFs(fsys afero.Fs) LocalOption {
	return func(s *LocalSink) {
		s.fs = fsys
		_, s.xattrs = fsys.(*afero.OsFs)
	}
}

// WithBufferSize sets the copy buffer size. Values <= 0 keep the default.
func WithBufferSize(n int) LocalOption {
	return func(s *LocalSink) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// NewLocalSink returns a sink rooted at base. An empty base means
// DefaultLocalPath.
func NewLocalSink(base string, opts ...LocalOption) *LocalSink {
	if base == "" {
		base = DefaultLocalPath
	}
	s := &LocalSink{
		fs:      afero.NewOsFs(),
		base:    filepath.Clean(base),
		bufSize: DefaultBufferSize,
		xattrs:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalSink) Base() string { return s.base }

// resolve maps destPath onto the base directory, refusing paths that
// would escape it.
func (s *LocalSink) resolve(destPath string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(destPath, `/\`)))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid destination path %q", ErrIOFailure, destPath)
	}
	return filepath.Join(s.base, rel), nil
}

func (s *LocalSink) Write(ctx context.Context, destPath string, r io.Reader, offset, length int64, metadata map[string]string) (int64, error) {
	if err := checkOffset(offset); err != nil {
		return 0, err
	}
	target, err := s.resolve(destPath)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(target)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, classify("create parent dir "+dir, err, true)
	}

	tmpPath := filepath.Join(dir, stagingName(filepath.Base(target)))
	registerStaging(tmpPath, func() error { return s.fs.Remove(tmpPath) })
	defer func() {
		deregisterStaging(tmpPath)
		_ = s.fs.Remove(tmpPath) // no-op if rename succeeded
	}()

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, classify("create staging file "+tmpPath, err, true)
	}

	n, err := copyExact(ctx, f, r, length, s.bufSize)
	if err != nil {
		f.Close()
		return 0, classify("write "+tmpPath, err, false)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, classify("sync "+tmpPath, err, false)
	}
	if err := f.Close(); err != nil {
		return 0, classify("close "+tmpPath, err, false)
	}

	if err := s.fs.Rename(tmpPath, target); err != nil {
		return 0, classify("rename "+tmpPath, err, false)
	}

	if s.xattrs {
		s.setXattrs(target, metadata)
	}
	return n, nil
}

// setXattrs stores metadata as user.relay.<key> attributes. Filesystems
// without xattr support are skipped silently.
func (s *LocalSink) setXattrs(path string, metadata map[string]string) {
	for k, v := range metadata {
		if err := unix.Setxattr(path, xattrPrefix+k, []byte(v), 0); err != nil {
			if err != unix.ENOTSUP && err != unix.EOPNOTSUPP {
				slog.Debug("set metadata xattr failed", "path", path, "key", k, "error", err)
			}
			return
		}
	}
}

func (s *LocalSink) Hash(_ context.Context, destPath string) (string, error) {
	target, err := s.resolve(destPath)
	if err != nil {
		return "", err
	}
	f, err := s.fs.Open(target)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", target, err)
	}
	defer f.Close()
	return HashReader(f)
}

// Xattr returns the metadata value stored for key on destPath.
func (s *LocalSink) Xattr(destPath, key string) (string, error) {
	target, err := s.resolve(destPath)
	if err != nil {
		return "", err
	}
	sz, err := unix.Getxattr(target, xattrPrefix+key, nil)
	if err != nil {
		return "", fmt.Errorf("getxattr %s: %w", target, err)
	}
	buf := make([]byte, sz)
	n, err := unix.Getxattr(target, xattrPrefix+key, buf)
	if err != nil {
		return "", fmt.Errorf("getxattr %s: %w", target, err)
	}
	return string(buf[:n]), nil
}
