package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"

	"github.com/bamsammich/relay/internal/transport"
)

// SFTP status codes for out-of-space conditions (draft-ietf-secsh-filexfer).
const (
	sshFxNoSpaceOnFilesystem = 14
	sshFxQuotaExceeded       = 15
)

var (
	_ Sink   = (*SFTPSink)(nil)
	_ Hasher = (*SFTPSink)(nil)
)

// SFTPSink writes files under a base directory on a remote host.
// Metadata is not stored.
type SFTPSink struct {
	conn    *transport.SFTPConn
	base    string
	bufSize int
}

// DialSFTPSink connects to an sftp:// URI and returns a sink rooted at
// its path. The caller must call Close when done.
func DialSFTPSink(ctx context.Context, uri string, opts transport.SSHOpts) (*SFTPSink, error) {
	loc, err := transport.ParseLocation(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	if loc.Scheme != transport.SchemeSFTP {
		return nil, fmt.Errorf("%w: not an sftp location: %s", ErrSinkUnavailable, uri)
	}
	conn, err := transport.DialSFTP(ctx, loc, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	return NewSFTPSink(conn, loc.Path), nil
}

// NewSFTPSink returns a sink writing through conn. The sink owns conn.
func NewSFTPSink(conn *transport.SFTPConn, base string) *SFTPSink {
	return &SFTPSink{conn: conn, base: path.Clean(base), bufSize: 32 * 1024}
}

func (s *SFTPSink) resolve(destPath string) (string, error) {
	rel := path.Clean(strings.TrimLeft(strings.ReplaceAll(destPath, `\`, "/"), "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: invalid destination path %q", ErrIOFailure, destPath)
	}
	return path.Join(s.base, rel), nil
}

func (s *SFTPSink) Write(ctx context.Context, destPath string, r io.Reader, offset, length int64, _ map[string]string) (int64, error) {
	if err := checkOffset(offset); err != nil {
		return 0, err
	}
	target, err := s.resolve(destPath)
	if err != nil {
		return 0, err
	}

	dir := path.Dir(target)
	if err := s.conn.MkdirAll(dir); err != nil {
		return 0, classifySFTP("create parent dir "+dir, err, true)
	}

	tmpPath := path.Join(dir, stagingName(path.Base(target)))
	registerStaging(tmpPath, func() error { return s.conn.Remove(tmpPath) })
	defer func() {
		deregisterStaging(tmpPath)
		_ = s.conn.Remove(tmpPath)
	}()

	f, err := s.conn.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		return 0, classifySFTP("create staging file "+tmpPath, err, true)
	}

	n, err := copyExact(ctx, f, r, length, s.bufSize)
	if err != nil {
		f.Close()
		return 0, classifySFTP("write "+tmpPath, err, false)
	}
	if err := f.Close(); err != nil {
		return 0, classifySFTP("close "+tmpPath, err, false)
	}

	if err := s.rename(tmpPath, target); err != nil {
		return 0, classifySFTP("rename "+tmpPath, err, false)
	}
	return n, nil
}

// rename replaces target atomically when the server supports
// posix-rename, and falls back to remove-then-rename otherwise.
func (s *SFTPSink) rename(from, to string) error {
	if _, ok := s.conn.HasExtension("posix-rename@openssh.com"); ok {
		return s.conn.PosixRename(from, to)
	}
	// Plain SFTP rename fails if target exists.
	_ = s.conn.Remove(to)
	return s.conn.Rename(from, to)
}

func (s *SFTPSink) Hash(_ context.Context, destPath string) (string, error) {
	target, err := s.resolve(destPath)
	if err != nil {
		return "", err
	}
	f, err := s.conn.Open(target)
	if err != nil {
		return "", fmt.Errorf("sftp open %s: %w", target, err)
	}
	defer f.Close()
	return HashReader(f)
}

func (s *SFTPSink) Close() error {
	return s.conn.Close()
}

func classifySFTP(op string, err error, unavailable bool) error {
	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case sshFxNoSpaceOnFilesystem, sshFxQuotaExceeded:
			return fmt.Errorf("%w: %s: %w", ErrQuotaExceeded, op, err)
		}
	}
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, sftp.ErrSSHFxNoConnection) {
		return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, op, err)
	}
	if unavailable && errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, op, err)
	}
	return classify(op, err, unavailable)
}
