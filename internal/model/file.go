package model

import (
	"fmt"
	"strings"
	"time"
)

// FileDescriptor describes a file as observed at a source during listing.
type FileDescriptor struct {
	// SourcePath is the provider-specific path handed back to Open.
	SourcePath string
	// RelPath is SourcePath relative to the source base, '/'-separated.
	// It is informational and not part of the file identity.
	RelPath      string
	SizeBytes    int64
	MtimeEpochMs int64
}

// NewFileDescriptor validates and returns a descriptor.
func NewFileDescriptor(sourcePath string, sizeBytes, mtimeEpochMs int64) (FileDescriptor, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return FileDescriptor{}, fmt.Errorf("%w: source path cannot be blank", ErrInvalidConfiguration)
	}
	if sizeBytes < 0 {
		return FileDescriptor{}, fmt.Errorf("%w: size cannot be negative: %d", ErrInvalidConfiguration, sizeBytes)
	}
	return FileDescriptor{
		SourcePath:   sourcePath,
		SizeBytes:    sizeBytes,
		MtimeEpochMs: mtimeEpochMs,
	}, nil
}

// FileStatus is the journal state of a FileRecord.
type FileStatus string

const (
	StatusDiscovered FileStatus = "DISCOVERED"
	StatusCopying    FileStatus = "COPYING"
	StatusCopied     FileStatus = "COPIED"
	StatusFailed     FileStatus = "FAILED"
	// StatusSkipped is reported in results; it is not normally journaled.
	StatusSkipped FileStatus = "SKIPPED"
)

// Valid reports whether s is one of the known statuses.
func (s FileStatus) Valid() bool {
	switch s {
	case StatusDiscovered, StatusCopying, StatusCopied, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ParseFileStatus converts a stored status string back to a FileStatus.
func ParseFileStatus(s string) (FileStatus, error) {
	st := FileStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown file status %q", s)
	}
	return st, nil
}

// FileRecord is the durable journal entry for one discovered file.
type FileRecord struct {
	CopiedAt     *time.Time
	FileID       string
	FeedID       string
	SourcePath   string
	ChecksumMD5  string // reserved, not computed yet
	Status       FileStatus
	DestURI      string
	SizeBytes    int64
	MtimeEpochMs int64
	Attempts     int
}

// NewFileRecord returns a record in the given status for a freshly observed file.
func NewFileRecord(fileID, feedID string, d FileDescriptor, status FileStatus) (FileRecord, error) {
	if strings.TrimSpace(fileID) == "" {
		return FileRecord{}, fmt.Errorf("%w: file id cannot be blank", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(feedID) == "" {
		return FileRecord{}, fmt.Errorf("%w: feed id cannot be blank", ErrInvalidConfiguration)
	}
	return FileRecord{
		FileID:       fileID,
		FeedID:       feedID,
		SourcePath:   d.SourcePath,
		SizeBytes:    d.SizeBytes,
		MtimeEpochMs: d.MtimeEpochMs,
		Status:       status,
	}, nil
}
