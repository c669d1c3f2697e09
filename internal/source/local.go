package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/bamsammich/relay/internal/filter"
	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/transport"
)

var _ Provider = (*LocalProvider)(nil)

// LocalProvider lists and reads files from a filesystem path.
type LocalProvider struct {
	fs afero.Fs
}

// NewLocalProvider returns a provider over fsys. A nil fsys means the OS
// filesystem.
func NewLocalProvider(fsys afero.Fs) *LocalProvider {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &LocalProvider{fs: fsys}
}

func (p *LocalProvider) List(ctx context.Context, feed model.Feed) (Iterator, error) {
	loc, err := transport.ParseLocation(feed.SourceURI())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if loc.Scheme != transport.SchemeFile {
		return nil, fmt.Errorf("%w: local provider cannot list %s", ErrSourceUnavailable, feed.SourceURI())
	}
	base := filepath.Clean(loc.Path)

	info, err := p.fs.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrSourceUnavailable, base, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, base)
	}

	m, err := filter.NewMatcher(feed.IncludePatterns(), feed.ExcludePatterns())
	if err != nil {
		return nil, fmt.Errorf("feed %s patterns: %w", feed.ID(), err)
	}

	return newWalkIterator(ctx, func(ctx context.Context, emit func(model.FileDescriptor) bool) error {
		return p.walk(ctx, base, m, emit)
	}), nil
}

func (p *LocalProvider) walk(ctx context.Context, base string, m *filter.Matcher, emit func(model.FileDescriptor) bool) error {
	err := afero.Walk(p.fs, base, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Entries removed mid-walk are simply not listed.
			if errors.Is(err, fs.ErrNotExist) && path != base {
				return nil
			}
			return fmt.Errorf("%w: walk %s: %w", ErrSourceUnavailable, path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("rel path for %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if !m.Match(rel) {
			return nil
		}

		d := model.FileDescriptor{
			SourcePath:   path,
			RelPath:      rel,
			SizeBytes:    info.Size(),
			MtimeEpochMs: info.ModTime().UnixMilli(),
		}
		if !emit(d) {
			return ctx.Err()
		}
		return nil
	})
	return err
}

func (p *LocalProvider) Open(_ context.Context, d model.FileDescriptor, offset int64) (io.ReadCloser, error) {
	if err := checkRange(d, offset); err != nil {
		return nil, err
	}

	f, err := p.fs.Open(d.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceGone, d.SourcePath)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, d.SourcePath, err)
	}

	if offset > 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat %s: %w", d.SourcePath, err)
		}
		if offset > info.Size() {
			f.Close()
			return nil, fmt.Errorf("%w: offset %d beyond current size %d: %s",
				ErrRangeUnavailable, offset, info.Size(), d.SourcePath)
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", d.SourcePath, err)
		}
	}
	return f, nil
}
