package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/bamsammich/relay/internal/filter"
	"github.com/bamsammich/relay/internal/metrics"
	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/relay"
	"github.com/bamsammich/relay/internal/sink"
	"github.com/bamsammich/relay/internal/stats"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		feedIDs     []string
		metricsAddr string
		bwLimitStr  string
		workers     int
		verify      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run configured feeds once",
		Long: "Run lists every active feed (or only those named with --feed), skips files\n" +
			"already journaled as copied and copies the rest into the configured sink.\n\n" +
			"Exit status is 0 when every file succeeded or was skipped, 1 when some files\n" +
			"failed, and 2 when a feed could not be listed or the run was aborted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyConfigDefaults(cmd, a.cfg.Defaults, &verify, &workers)
			if !cmd.Flags().Changed("bwlimit") && a.cfg.Defaults.BWLimit != nil {
				bwLimitStr = *a.cfg.Defaults.BWLimit
			}
			var bwLimit int64
			if bwLimitStr != "" {
				var err error
				if bwLimit, err = filter.ParseSize(bwLimitStr); err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}
			if workers <= 0 {
				workers = min(runtime.NumCPU(), 8)
			}

			feeds, err := selectFeeds(a, feedIDs)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.runFeeds(ctx, feeds, runOptions{
				metricsAddr: metricsAddr,
				bwLimit:     bwLimit,
				workers:     workers,
				verify:      verify,
			})
		},
	}

	cmd.Flags().StringSliceVar(&feedIDs, "feed", nil, "run only the named feed (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on ADDR (e.g. :9100)")
	cmd.Flags().StringVar(&bwLimitStr, "bwlimit", "", "aggregate read bandwidth limit (e.g. 10M, 1G)")
	cmd.Flags().IntVarP(&workers, "workers", "n", 1, "files copied concurrently per feed (0: min(NumCPU, 8))")
	cmd.Flags().BoolVar(&verify, "verify", false, "read back each copy and compare BLAKE3 digests")
	return cmd
}

type runOptions struct {
	metricsAddr string
	bwLimit     int64
	workers     int
	verify      bool
}

func selectFeeds(a *app, ids []string) ([]model.Feed, error) {
	if len(ids) == 0 {
		feeds, err := a.cfg.Feeds()
		if err != nil {
			return nil, err
		}
		if len(feeds) == 0 {
			return nil, errors.New("no feeds configured")
		}
		return feeds, nil
	}
	feeds := make([]model.Feed, 0, len(ids))
	for _, id := range ids {
		f, err := a.cfg.Feed(id)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func (a *app) runFeeds(ctx context.Context, feeds []model.Feed, opts runOptions) error {
	logger := a.logger

	resolver := buildResolver(a.cfg)
	defer resolver.Close()

	dst, closeSink, err := buildSink(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeSink.Close()

	tr, err := buildTracker(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}
	defer tr.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)
	if opts.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.metricsAddr, reg, logger); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	collector := stats.NewCollector()
	orch := relay.New(resolver, dst, tr,
		relay.WithLogger(logger),
		relay.WithWorkers(opts.workers),
		relay.WithBandwidthLimit(opts.bwLimit),
		relay.WithVerify(opts.verify),
		relay.WithStats(collector),
		relay.WithMetrics(recorder),
	)

	var partial, aborted bool
	for _, feed := range feeds {
		results, err := orch.ExecuteTransfer(ctx, feed)
		s := relay.Summarize(results)
		fmt.Fprintf(a.stdout, "%s: copied=%d skipped=%d failed=%d bytes=%s\n",
			feed.ID(), s.Copied, s.Skipped, s.Failed, stats.FormatBytes(s.Bytes))
		if s.Failed > 0 {
			partial = true
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			if n := sink.CleanupStaging(); n > 0 {
				logger.Warn("removed staging files", "count", n)
			}
			return &exitError{code: 2}
		}
		aborted = true
	}

	logger.Info("relay finished", "stats", collector.Snapshot().String())
	switch {
	case aborted:
		return &exitError{code: 2}
	case partial:
		return &exitError{code: 1}
	}
	return nil
}
