package source

import (
	"context"
	"errors"
	"sync"

	"github.com/bamsammich/relay/internal/model"
)

// walkFunc walks a tree and hands each descriptor to emit. emit returns
// false once the walk should stop.
type walkFunc func(ctx context.Context, emit func(model.FileDescriptor) bool) error

// walkIterator adapts a push-style walk running in its own goroutine to
// the pull-style Iterator.
type walkIterator struct {
	ch        chan model.FileDescriptor
	cancel    context.CancelFunc
	cur       model.FileDescriptor
	err       error // set by the walker before ch is closed
	exhausted bool
	closeOnce sync.Once
}

func newWalkIterator(ctx context.Context, walk walkFunc) *walkIterator {
	ctx, cancel := context.WithCancel(ctx)
	it := &walkIterator{
		ch:     make(chan model.FileDescriptor),
		cancel: cancel,
	}
	go func() {
		err := walk(ctx, func(d model.FileDescriptor) bool {
			select {
			case it.ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		})
		it.err = err
		close(it.ch)
	}()
	return it
}

func (it *walkIterator) Next() bool {
	if it.exhausted {
		return false
	}
	d, ok := <-it.ch
	if !ok {
		it.exhausted = true
		return false
	}
	it.cur = d
	return true
}

func (it *walkIterator) Descriptor() model.FileDescriptor { return it.cur }

func (it *walkIterator) Err() error {
	if !it.exhausted {
		return nil
	}
	return it.err
}

// Close stops the walk and waits for its goroutine to finish.
func (it *walkIterator) Close() error {
	it.closeOnce.Do(func() {
		it.cancel()
		if it.exhausted {
			return
		}
		for range it.ch { //nolint:revive // drain until the walker exits
		}
		it.exhausted = true
		// A walk ended by Close is not an error to report.
		if errors.Is(it.err, context.Canceled) {
			it.err = nil
		}
	})
	return nil
}
