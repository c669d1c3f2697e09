package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/transport"
)

var _ Provider = (*Resolver)(nil)

// Resolver dispatches to a registered Provider by URI scheme. Bare paths
// resolve to the "file" scheme.
type Resolver struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewResolver returns a resolver with a local provider on the OS
// filesystem registered for "file".
func NewResolver() *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	r.Register(transport.SchemeFile, NewLocalProvider(nil))
	return r
}

// Register installs p for scheme, replacing any earlier registration.
func (r *Resolver) Register(scheme string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[scheme] = p
}

// For returns the provider responsible for uri.
func (r *Resolver) For(uri string) (Provider, error) {
	loc, err := transport.ParseLocation(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	r.mu.RLock()
	p, ok := r.providers[loc.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no provider for scheme %q", ErrSourceUnavailable, loc.Scheme)
	}
	return p, nil
}

func (r *Resolver) List(ctx context.Context, feed model.Feed) (Iterator, error) {
	p, err := r.For(feed.SourceURI())
	if err != nil {
		return nil, err
	}
	return p.List(ctx, feed)
}

func (r *Resolver) Open(ctx context.Context, d model.FileDescriptor, offset int64) (io.ReadCloser, error) {
	p, err := r.For(d.SourcePath)
	if err != nil {
		return nil, err
	}
	return p.Open(ctx, d, offset)
}

// Close closes every registered provider that holds resources.
func (r *Resolver) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
