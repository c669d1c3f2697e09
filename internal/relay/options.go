package relay

import (
	"log/slog"
	"time"

	"github.com/bamsammich/relay/internal/metrics"
	"github.com/bamsammich/relay/internal/stats"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkers processes up to n descriptors of one feed concurrently.
// n <= 1 keeps processing sequential. Result order is unspecified when
// n > 1.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = max(n, 1) }
}

// WithBandwidthLimit caps aggregate read throughput across all workers.
// Zero or negative means unlimited.
func WithBandwidthLimit(bytesPerSec int64) Option {
	return func(o *Orchestrator) { o.bandwidth = newBandwidth(bytesPerSec) }
}

// WithVerify reads back each written file and compares BLAKE3 digests.
// It has no effect when the sink cannot read back.
func WithVerify(v bool) Option {
	return func(o *Orchestrator) { o.verify = v }
}

func WithStats(c *stats.Collector) Option {
	return func(o *Orchestrator) { o.stats = c }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithClock overrides the clock used for run and file timings.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}
