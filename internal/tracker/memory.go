package tracker

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bamsammich/relay/internal/model"
)

var _ Tracker = (*MemoryTracker)(nil)

// MemoryTracker keeps records in process memory. It is meant for
// development and tests; nothing survives a restart.
type MemoryTracker struct {
	records    map[string]model.FileRecord
	byIdentity map[identityKey]string // quadruple -> file id
	now        func() time.Time
	mu         sync.RWMutex
}

func NewMemoryTracker(opts ...Option) *MemoryTracker {
	o := buildOptions(opts)
	return &MemoryTracker{
		records:    make(map[string]model.FileRecord),
		byIdentity: make(map[identityKey]string),
		now:        o.now,
	}
}

// identityKey is the identity quadruple, compared field by field.
type identityKey struct {
	feedID     string
	sourcePath string
	mtimeMs    int64
	size       int64
}

func recordKey(rec model.FileRecord) identityKey {
	return identityKey{rec.FeedID, rec.SourcePath, rec.MtimeEpochMs, rec.SizeBytes}
}

// clone detaches the CopiedAt pointer from the stored record.
func clone(rec model.FileRecord) model.FileRecord {
	if rec.CopiedAt != nil {
		t := *rec.CopiedAt
		rec.CopiedAt = &t
	}
	return rec
}

func (m *MemoryTracker) UpsertFile(_ context.Context, rec model.FileRecord) error {
	key := recordKey(rec)

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.byIdentity[key]; ok && owner != rec.FileID {
		return fmt.Errorf("upsert %s: %w: %s", rec.FileID, ErrIdentityConflict, owner)
	}
	if prev, ok := m.records[rec.FileID]; ok {
		delete(m.byIdentity, recordKey(prev))
		rec = mergeUpsert(prev, rec)
	}
	m.records[rec.FileID] = clone(rec)
	m.byIdentity[key] = rec.FileID
	return nil
}

func (m *MemoryTracker) FindByIdentity(_ context.Context, feedID, sourcePath string, mtimeMs, size int64) (model.FileRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byIdentity[identityKey{feedID, sourcePath, mtimeMs, size}]
	if !ok {
		return model.FileRecord{}, false, nil
	}
	return clone(m.records[id]), true, nil
}

func (m *MemoryTracker) UpdateStatus(_ context.Context, fileID string, status model.FileStatus, destURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[fileID]
	if !ok {
		return fmt.Errorf("update %s to %s: %w", fileID, status, ErrRecordNotFound)
	}
	applyStatus(&rec, status, destURI, m.now())
	m.records[fileID] = rec
	return nil
}

func (m *MemoryTracker) ShouldSkip(ctx context.Context, feedID, sourcePath string, mtimeMs, size int64) (bool, error) {
	rec, ok, err := m.FindByIdentity(ctx, feedID, sourcePath, mtimeMs, size)
	if err != nil || !ok {
		return false, err
	}
	return rec.Status == model.StatusCopied, nil
}

func (m *MemoryTracker) Get(_ context.Context, fileID string) (model.FileRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[fileID]
	return clone(rec), ok, nil
}

func (m *MemoryTracker) ListByFeed(_ context.Context, feedID string) ([]model.FileRecord, error) {
	m.mu.RLock()
	var out []model.FileRecord
	for _, rec := range m.records {
		if rec.FeedID == feedID {
			out = append(out, clone(rec))
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.FileRecord) int {
		return cmp.Or(
			strings.Compare(a.SourcePath, b.SourcePath),
			cmp.Compare(a.MtimeEpochMs, b.MtimeEpochMs),
		)
	})
	return out, nil
}

func (m *MemoryTracker) Close() error { return nil }
