package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bamsammich/relay/internal/config"
	"github.com/bamsammich/relay/internal/sink"
	"github.com/bamsammich/relay/internal/source"
	"github.com/bamsammich/relay/internal/tracker"
	"github.com/bamsammich/relay/internal/transport"
)

// buildResolver returns a resolver that serves file and sftp feeds.
func buildResolver(cfg config.Config) *source.Resolver {
	r := source.NewResolver()
	r.Register(transport.SchemeSFTP, source.NewSFTPProvider(cfg.SSHOpts()))
	return r
}

// buildSink returns the configured sink and a closer for its connection.
//
//nolint:ireturn // factory returns interface by design
func buildSink(ctx context.Context, cfg config.Config) (sink.Sink, io.Closer, error) {
	switch cfg.Sink.Kind {
	case config.SinkLocal:
		return sink.NewLocalSink(cfg.Sink.Local.Path, sink.WithBufferSize(cfg.Sink.Local.BufferSize)), nopCloser{}, nil
	case config.SinkSFTP:
		s, err := sink.DialSFTPSink(ctx, cfg.Sink.SFTP.URI, cfg.SSHOpts())
		if err != nil {
			return nil, nil, fmt.Errorf("sftp sink: %w", err)
		}
		return s, s, nil
	case config.SinkGCS:
		s, err := sink.NewGCSSink(ctx, sink.GCSConfig{
			Bucket:    cfg.Sink.GCS.Bucket,
			Prefix:    cfg.Sink.GCS.Prefix,
			Endpoint:  cfg.Sink.GCS.Endpoint,
			ChunkSize: cfg.Sink.GCS.ChunkSize,
			Anonymous: cfg.Sink.GCS.Anonymous,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gcs sink: %w", err)
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
}

// buildTracker opens the configured journal.
//
//nolint:ireturn // factory returns interface by design
func buildTracker(ctx context.Context, cfg config.Config, logger *slog.Logger) (tracker.Tracker, error) {
	switch cfg.Tracker.Kind {
	case config.TrackerMemory:
		logger.Warn("using in-memory tracker; copy state is lost on exit")
		return tracker.NewMemoryTracker(), nil
	case config.TrackerSQLite:
		t, err := tracker.OpenSQLite(cfg.Tracker.Path)
		if err != nil {
			return nil, err
		}
		logger.Debug("tracker opened", "kind", cfg.Tracker.Kind, "path", t.Path())
		return t, nil
	case config.TrackerPostgres:
		t, err := tracker.OpenPostgres(ctx, cfg.Tracker.DSN, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", cfg.Tracker.Kind)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
