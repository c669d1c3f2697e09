// Package stats counts per-run transfer outcomes.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks run statistics with lock-free counters. It is safe
// for concurrent use by relay workers.
type Collector struct {
	startTime     time.Time
	filesListed   atomic.Int64
	filesCopied   atomic.Int64
	filesSkipped  atomic.Int64
	filesFailed   atomic.Int64
	bytesCopied   atomic.Int64
	filesVerified atomic.Int64
	verifyFailed  atomic.Int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesListed(n int64)   { c.filesListed.Add(n) }
func (c *Collector) AddFilesCopied(n int64)   { c.filesCopied.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)  { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)   { c.filesFailed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)   { c.bytesCopied.Add(n) }
func (c *Collector) AddFilesVerified(n int64) { c.filesVerified.Add(n) }
func (c *Collector) AddVerifyFailed(n int64)  { c.verifyFailed.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesListed   int64
	FilesCopied   int64
	FilesSkipped  int64
	FilesFailed   int64
	BytesCopied   int64
	FilesVerified int64
	VerifyFailed  int64
	Elapsed       time.Duration
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesListed:   c.filesListed.Load(),
		FilesCopied:   c.filesCopied.Load(),
		FilesSkipped:  c.filesSkipped.Load(),
		FilesFailed:   c.filesFailed.Load(),
		BytesCopied:   c.bytesCopied.Load(),
		FilesVerified: c.filesVerified.Load(),
		VerifyFailed:  c.verifyFailed.Load(),
		Elapsed:       c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Throughput returns the average bytes per second over the snapshot.
func (s Snapshot) Throughput() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.BytesCopied) / secs
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"listed=%d copied=%d skipped=%d failed=%d bytes=%d",
		s.FilesListed, s.FilesCopied, s.FilesSkipped, s.FilesFailed, s.BytesCopied,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
