// Package metrics exposes Prometheus metrics for relay runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the relay metric families. A nil *Recorder records
// nothing, so callers need not check.
type Recorder struct {
	files        *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	lastRun      *prometheus.GaugeVec
}

// NewRecorder registers the relay metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		files: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_files_total",
				Help: "Files processed, by feed and result status.",
			},
			[]string{"feed", "status"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_bytes_total",
				Help: "Bytes written to the sink.",
			},
			[]string{"feed"},
		),
		fileDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_file_duration_seconds",
				Help:    "Time to copy one file, including journaling.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"feed"},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_runs_total",
				Help: "Feed runs, by outcome (ok, partial, failed).",
			},
			[]string{"feed", "outcome"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_run_duration_seconds",
				Help:    "Wall time of one feed run.",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
			[]string{"feed"},
		),
		lastRun: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_last_run_timestamp_seconds",
				Help: "Unix time the last run of a feed finished.",
			},
			[]string{"feed"},
		),
	}
}

// ObserveFile records one per-file result.
func (r *Recorder) ObserveFile(feed, status string, bytes int64, d time.Duration) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(feed, status).Inc()
	if bytes > 0 {
		r.bytes.WithLabelValues(feed).Add(float64(bytes))
	}
	if d > 0 {
		r.fileDuration.WithLabelValues(feed).Observe(d.Seconds())
	}
}

// ObserveRun records the end of a feed run.
func (r *Recorder) ObserveRun(feed, outcome string, d time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(feed, outcome).Inc()
	r.runDuration.WithLabelValues(feed).Observe(d.Seconds())
	r.lastRun.WithLabelValues(feed).Set(float64(finished.Unix()))
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
