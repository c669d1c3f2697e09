// Package relay runs one feed end to end: list the source, skip what the
// tracker already holds as COPIED, and copy everything else into the sink
// while journaling each state transition.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/relay/internal/identity"
	"github.com/bamsammich/relay/internal/metrics"
	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/sink"
	"github.com/bamsammich/relay/internal/source"
	"github.com/bamsammich/relay/internal/stats"
	"github.com/bamsammich/relay/internal/tracker"
	"github.com/bamsammich/relay/internal/transport"
)

// ErrListingFailed wraps any error that prevented the source from being
// fully enumerated.
var ErrListingFailed = errors.New("listing failed")

// SkipReasonCopied is the result message for files already journaled as
// COPIED.
const SkipReasonCopied = "Already copied"

// Run outcomes reported to metrics.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Orchestrator wires a source, a sink and a tracker together. It holds no
// per-run state and may be reused across feeds.
type Orchestrator struct {
	src       source.Provider
	dst       sink.Sink
	tr        tracker.Tracker
	logger    *slog.Logger
	bandwidth *bandwidth
	stats     *stats.Collector
	metrics   *metrics.Recorder
	now       func() time.Time
	workers   int
	verify    bool
}

// New returns an Orchestrator. The components are owned by the caller.
func New(src source.Provider, dst sink.Sink, tr tracker.Tracker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		src:     src,
		dst:     dst,
		tr:      tr,
		logger:  slog.Default(),
		now:     time.Now,
		workers: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.stats == nil {
		o.stats = stats.NewCollector()
	}
	return o
}

// Stats returns the collector the orchestrator reports into.
func (o *Orchestrator) Stats() *stats.Collector { return o.stats }

// ExecuteTransfer processes every file the source lists for feed and
// returns one result per descriptor handled.
//
// Per-file copy failures are reported as FAILED results, never as an
// error. A non-nil error means the run was aborted: listing failed
// (ErrListingFailed), a tracker call failed, or ctx was cancelled. The
// results gathered so far are returned alongside it.
func (o *Orchestrator) ExecuteTransfer(ctx context.Context, feed model.Feed) ([]model.TransferResult, error) {
	if !feed.Active() {
		o.logger.Debug("feed inactive, skipping", "feed", feed.ID())
		return []model.TransferResult{}, nil
	}

	start := o.now()
	log := o.logger.With("feed", feed.ID())
	log.Info("run started", "source", feed.SourceURI(), "workers", o.workers)

	results, err := o.run(ctx, feed, log)

	summary := Summarize(results)
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeFailed
	case summary.Failed > 0:
		outcome = OutcomePartial
	}
	finished := o.now()
	o.metrics.ObserveRun(feed.ID(), outcome, finished.Sub(start), finished)

	attrs := []any{
		"outcome", outcome,
		"copied", summary.Copied,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"bytes", summary.Bytes,
		"elapsed", finished.Sub(start).Round(time.Millisecond),
	}
	if err != nil {
		log.Error("run aborted", append(attrs, "error", err)...)
		return results, err
	}
	log.Info("run finished", attrs...)
	return results, nil
}

func (o *Orchestrator) run(ctx context.Context, feed model.Feed, log *slog.Logger) ([]model.TransferResult, error) {
	it, err := o.src.List(ctx, feed)
	if err != nil {
		return []model.TransferResult{}, fmt.Errorf("%w: feed %s: %w", ErrListingFailed, feed.ID(), err)
	}
	defer it.Close()

	var results []model.TransferResult
	if o.workers <= 1 {
		results, err = o.runSequential(ctx, feed, it, log)
	} else {
		results, err = o.runParallel(ctx, feed, it, log)
	}
	if results == nil {
		results = []model.TransferResult{}
	}
	if err != nil {
		return results, err
	}
	if err := it.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, fmt.Errorf("feed %s: %w", feed.ID(), ctxErr)
		}
		return results, fmt.Errorf("%w: feed %s: %w", ErrListingFailed, feed.ID(), err)
	}
	return results, nil
}

func (o *Orchestrator) runSequential(ctx context.Context, feed model.Feed, it source.Iterator, log *slog.Logger) ([]model.TransferResult, error) {
	var results []model.TransferResult
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("feed %s: %w", feed.ID(), err)
		}
		o.stats.AddFilesListed(1)
		res, err := o.processFile(ctx, feed, it.Descriptor(), log)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// runParallel hands descriptors to at most o.workers goroutines. Each
// descriptor is owned by exactly one worker, so transitions for a file id
// stay ordered. The first aborting error cancels the rest.
func (o *Orchestrator) runParallel(ctx context.Context, feed model.Feed, it source.Iterator, log *slog.Logger) ([]model.TransferResult, error) {
	var (
		mu      sync.Mutex
		results []model.TransferResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for gctx.Err() == nil && it.Next() {
		d := it.Descriptor()
		o.stats.AddFilesListed(1)
		g.Go(func() error {
			res, err := o.processFile(gctx, feed, d, log)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("feed %s: %w", feed.ID(), ctxErr)
		}
	}
	return results, err
}

// processFile drives one descriptor through
// DISCOVERED -> COPYING -> COPIED | FAILED.
func (o *Orchestrator) processFile(ctx context.Context, feed model.Feed, d model.FileDescriptor, log *slog.Logger) (model.TransferResult, error) {
	fileID := identity.ForDescriptor(feed.ID(), d)
	log = log.With("file_id", fileID, "path", d.SourcePath)
	start := o.now()

	skip, err := o.tr.ShouldSkip(ctx, feed.ID(), d.SourcePath, d.MtimeEpochMs, d.SizeBytes)
	if err != nil {
		return model.TransferResult{}, fmt.Errorf("skip check %s: %w", d.SourcePath, err)
	}
	if skip {
		log.Debug("already copied")
		o.stats.AddFilesSkipped(1)
		o.metrics.ObserveFile(feed.ID(), string(model.ResultSkipped), 0, 0)
		return model.Skipped(fileID, d.SourcePath, SkipReasonCopied), nil
	}

	rec, err := model.NewFileRecord(fileID, feed.ID(), d, model.StatusDiscovered)
	if err != nil {
		return model.TransferResult{}, err
	}
	if err := o.tr.UpsertFile(ctx, rec); err != nil {
		return model.TransferResult{}, fmt.Errorf("record %s: %w", d.SourcePath, err)
	}

	destPath := DestPath(feed.DestinationPrefix(), d.SourcePath)
	n, copyErr := o.copy(ctx, fileID, d, destPath)
	if copyErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Leave the record COPYING; the next run retries it.
			log.Warn("copy interrupted", "error", copyErr)
			return model.TransferResult{}, fmt.Errorf("copy %s: %w", d.SourcePath, ctxErr)
		}
		if err := o.tr.UpdateStatus(ctx, fileID, model.StatusFailed, ""); err != nil {
			return model.TransferResult{}, fmt.Errorf("mark failed %s: %w: %w", d.SourcePath, err, copyErr)
		}
		log.Error("copy failed", "dest", destPath, "error", copyErr)
		o.stats.AddFilesFailed(1)
		if errors.Is(copyErr, ErrVerifyMismatch) {
			o.stats.AddVerifyFailed(1)
		}
		o.metrics.ObserveFile(feed.ID(), string(model.ResultFailed), 0, o.now().Sub(start))
		return model.Failed(fileID, d.SourcePath, copyErr.Error()), nil
	}

	if err := o.tr.UpdateStatus(ctx, fileID, model.StatusCopied, destPath); err != nil {
		return model.TransferResult{}, fmt.Errorf("mark copied %s: %w", d.SourcePath, err)
	}
	log.Debug("copied", "dest", destPath, "bytes", n)
	o.stats.AddFilesCopied(1)
	o.stats.AddBytesCopied(n)
	o.metrics.ObserveFile(feed.ID(), string(model.ResultSuccess), n, o.now().Sub(start))
	return model.Success(fileID, d.SourcePath, destPath, n), nil
}

// copy covers the COPYING transition, the stream and the sink write. The
// source stream is always closed before copy returns.
func (o *Orchestrator) copy(ctx context.Context, fileID string, d model.FileDescriptor, destPath string) (int64, error) {
	if err := o.tr.UpdateStatus(ctx, fileID, model.StatusCopying, ""); err != nil {
		return 0, fmt.Errorf("mark copying: %w", err)
	}

	rc, err := o.src.Open(ctx, d, 0)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	r := o.bandwidth.stream(ctx, d, rc)
	var v *verifier
	if o.verify {
		if v = newVerifier(o.dst); v != nil {
			r = v.wrap(r)
		}
	}

	n, err := o.dst.Write(ctx, destPath, r, 0, d.SizeBytes, metadataFor(d))
	if err != nil {
		return n, err
	}
	if v != nil {
		if err := v.check(ctx, destPath); err != nil {
			return n, err
		}
		o.stats.AddFilesVerified(1)
	}
	return n, nil
}

// DestPath names the sink object for sourcePath: its basename, under
// prefix when prefix is non-empty. Files with the same basename in
// different directories map to the same destination. Remote source paths
// are URIs and are unescaped first.
func DestPath(prefix, sourcePath string) string {
	if loc, err := transport.ParseLocation(sourcePath); err == nil && loc.IsRemote() {
		sourcePath = loc.Path
	}
	base := sourcePath
	if i := strings.LastIndexAny(sourcePath, `/\`); i >= 0 {
		base = sourcePath[i+1:]
	}
	if prefix == "" {
		return base
	}
	return prefix + "/" + base
}

func metadataFor(d model.FileDescriptor) map[string]string {
	return map[string]string{
		sink.MetaSource: d.SourcePath,
		sink.MetaSize:   strconv.FormatInt(d.SizeBytes, 10),
		sink.MetaMtime:  strconv.FormatInt(d.MtimeEpochMs, 10),
	}
}

// Summary tallies a run's results.
type Summary struct {
	Copied  int
	Skipped int
	Failed  int
	Bytes   int64
}

func Summarize(results []model.TransferResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case model.ResultSuccess:
			s.Copied++
			s.Bytes += r.BytesTransferred
		case model.ResultSkipped:
			s.Skipped++
		case model.ResultFailed:
			s.Failed++
		}
	}
	return s
}
