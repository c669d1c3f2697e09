package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"sync"

	"github.com/bamsammich/relay/internal/filter"
	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/transport"
)

var _ Provider = (*SFTPProvider)(nil)

// SFTPProvider lists and reads files on remote hosts over SFTP. Feed
// sources look like sftp://user@host:port/path. Descriptors carry the full
// sftp:// URI of each file as SourcePath.
//
// Connections are opened on first use per host and reused until Close.
type SFTPProvider struct {
	conns map[string]*transport.SFTPConn
	opts  transport.SSHOpts
	mu    sync.Mutex
}

func NewSFTPProvider(opts transport.SSHOpts) *SFTPProvider {
	return &SFTPProvider{
		conns: make(map[string]*transport.SFTPConn),
		opts:  opts,
	}
}

func connKey(loc transport.Location) string {
	return loc.User + "@" + loc.Host + ":" + strconv.Itoa(loc.Port)
}

func (p *SFTPProvider) conn(ctx context.Context, loc transport.Location) (*transport.SFTPConn, error) {
	key := connKey(loc)

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[key]; ok {
		return c, nil
	}
	c, err := transport.DialSFTP(ctx, loc, p.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	p.conns[key] = c
	return c, nil
}

// drop forgets a connection that failed so the next call redials.
func (p *SFTPProvider) drop(loc transport.Location, c *transport.SFTPConn) {
	key := connKey(loc)
	p.mu.Lock()
	if p.conns[key] == c {
		delete(p.conns, key)
	}
	p.mu.Unlock()
	_ = c.Close()
}

func parseSFTP(uri string) (transport.Location, error) {
	loc, err := transport.ParseLocation(uri)
	if err != nil {
		return transport.Location{}, err
	}
	if loc.Scheme != transport.SchemeSFTP {
		return transport.Location{}, fmt.Errorf("not an sftp location: %s", uri)
	}
	return loc, nil
}

func (p *SFTPProvider) List(ctx context.Context, feed model.Feed) (Iterator, error) {
	loc, err := parseSFTP(feed.SourceURI())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	m, err := filter.NewMatcher(feed.IncludePatterns(), feed.ExcludePatterns())
	if err != nil {
		return nil, fmt.Errorf("feed %s patterns: %w", feed.ID(), err)
	}

	c, err := p.conn(ctx, loc)
	if err != nil {
		return nil, err
	}

	base := path.Clean(loc.Path)
	if !path.IsAbs(base) {
		if abs, err := c.RealPath(base); err == nil {
			base = abs
		}
	}
	info, err := c.Stat(base)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.drop(loc, c)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrSourceUnavailable, loc, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, loc)
	}

	return &sftpIterator{
		ctx:     ctx,
		walker:  c.Walk(base),
		base:    base,
		loc:     loc,
		matcher: m,
	}, nil
}

func (p *SFTPProvider) Open(ctx context.Context, d model.FileDescriptor, offset int64) (io.ReadCloser, error) {
	if err := checkRange(d, offset); err != nil {
		return nil, err
	}
	loc, err := parseSFTP(d.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	c, err := p.conn(ctx, loc)
	if err != nil {
		return nil, err
	}

	f, err := c.Open(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceGone, d.SourcePath)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, d.SourcePath, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", d.SourcePath, err)
		}
	}
	return f, nil
}

// Close closes every cached connection.
func (p *SFTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for key, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.conns, key)
	}
	return errors.Join(errs...)
}

// walker is the subset of github.com/kr/fs.Walker used by sftpIterator.
type walker interface {
	Step() bool
	Err() error
	Path() string
	Stat() fs.FileInfo
}

// sftpIterator steps the SFTP walker directly; it is pull-based already.
type sftpIterator struct {
	ctx     context.Context
	walker  walker
	matcher *filter.Matcher
	err     error
	cur     model.FileDescriptor
	loc     transport.Location
	base    string
	closed  bool
}

func (it *sftpIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for it.walker.Step() {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		p := it.walker.Path()
		if err := it.walker.Err(); err != nil {
			if p == it.base {
				it.err = fmt.Errorf("%w: walk %s: %w", ErrSourceUnavailable, p, err)
				return false
			}
			continue
		}
		info := it.walker.Stat()
		if info == nil || !info.Mode().IsRegular() {
			continue
		}

		rel, ok := relRemote(it.base, p)
		if !ok || !it.matcher.Match(rel) {
			continue
		}

		fileLoc := it.loc
		fileLoc.Path = p
		it.cur = model.FileDescriptor{
			SourcePath:   fileLoc.String(),
			RelPath:      rel,
			SizeBytes:    info.Size(),
			MtimeEpochMs: info.ModTime().UnixMilli(),
		}
		return true
	}
	return false
}

func (it *sftpIterator) Descriptor() model.FileDescriptor { return it.cur }
func (it *sftpIterator) Err() error                       { return it.err }

func (it *sftpIterator) Close() error {
	it.closed = true
	return nil
}

// relRemote returns p relative to base using '/' semantics.
func relRemote(base, p string) (string, bool) {
	prefix := base
	if prefix != "/" {
		prefix += "/"
	}
	if len(p) <= len(prefix) || p[:len(prefix)] != prefix {
		return "", false
	}
	return p[len(prefix):], true
}
