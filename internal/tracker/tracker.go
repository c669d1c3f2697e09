// Package tracker journals per-file transfer state. It answers whether an
// identity quadruple was already copied and records status transitions.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/bamsammich/relay/internal/model"
)

var (
	// ErrRecordNotFound is returned by UpdateStatus for an unknown file id.
	ErrRecordNotFound = errors.New("record not found")
	// ErrIdentityConflict is returned by UpsertFile when another file id
	// already owns the record's identity quadruple.
	ErrIdentityConflict = errors.New("identity owned by another record")
)

// Tracker is safe for concurrent use. Each method is atomic per file id.
type Tracker interface {
	// UpsertFile inserts rec or replaces the stored record with the same
	// FileID. Attempts never decrease and an existing CopiedAt is kept
	// when rec carries none.
	UpsertFile(ctx context.Context, rec model.FileRecord) error
	FindByIdentity(ctx context.Context, feedID, sourcePath string, mtimeMs, size int64) (model.FileRecord, bool, error)
	// UpdateStatus moves a record to status. COPIED stamps CopiedAt and
	// stores destURI; FAILED increments Attempts. destURI is only kept
	// for COPIED.
	UpdateStatus(ctx context.Context, fileID string, status model.FileStatus, destURI string) error
	// ShouldSkip reports whether the identity is already COPIED.
	ShouldSkip(ctx context.Context, feedID, sourcePath string, mtimeMs, size int64) (bool, error)
	Get(ctx context.Context, fileID string) (model.FileRecord, bool, error)
	ListByFeed(ctx context.Context, feedID string) ([]model.FileRecord, error)
	Close() error
}

// Option configures a tracker.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock used for CopiedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// applyStatus mutates rec for an UpdateStatus transition.
func applyStatus(rec *model.FileRecord, status model.FileStatus, destURI string, now time.Time) {
	rec.Status = status
	switch status {
	case model.StatusCopied:
		t := now
		rec.CopiedAt = &t
		rec.DestURI = destURI
	case model.StatusFailed:
		rec.Attempts++
		rec.DestURI = ""
	default:
		rec.DestURI = ""
	}
}

// mergeUpsert carries the monotonic fields of prev into rec.
func mergeUpsert(prev, rec model.FileRecord) model.FileRecord {
	rec.Attempts = max(rec.Attempts, prev.Attempts)
	if rec.CopiedAt == nil {
		rec.CopiedAt = prev.CopiedAt
	}
	return rec
}
