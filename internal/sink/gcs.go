package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	_ Sink   = (*GCSSink)(nil)
	_ Hasher = (*GCSSink)(nil)
)

// GCSSink uploads objects to a Google Cloud Storage bucket. An object
// only becomes visible when its upload completes, so a failed or
// cancelled Write leaves any earlier object version in place.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
	// chunkSize is the resumable upload chunk size; 0 keeps the library default.
	chunkSize int
}

// GCSConfig configures NewGCSSink.
type GCSConfig struct {
	Bucket string
	Prefix string
	// Endpoint overrides the storage API URL, for emulators.
	Endpoint string
	// ChunkSize in bytes; 0 keeps the library default.
	ChunkSize int
	// Anonymous disables credential lookup.
	Anonymous bool
}

// NewGCSSink creates a storage client and returns a sink for cfg.Bucket.
// The caller must call Close when done.
func NewGCSSink(ctx context.Context, cfg GCSConfig) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket not configured", ErrSinkUnavailable)
	}
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: gcs client: %w", ErrSinkUnavailable, err)
	}
	s := NewGCSSinkClient(client, cfg.Bucket, cfg.Prefix)
	if cfg.ChunkSize > 0 {
		s.chunkSize = cfg.ChunkSize
	}
	return s, nil
}

// NewGCSSinkClient wraps an existing client. The sink owns client.
func NewGCSSinkClient(client *storage.Client, bucket, prefix string) *GCSSink {
	return &GCSSink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *GCSSink) objectName(destPath string) (string, error) {
	rel := path.Clean(strings.TrimLeft(strings.ReplaceAll(destPath, `\`, "/"), "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: invalid destination path %q", ErrIOFailure, destPath)
	}
	if s.prefix == "" {
		return rel, nil
	}
	return s.prefix + "/" + rel, nil
}

func (s *GCSSink) Write(ctx context.Context, destPath string, r io.Reader, offset, length int64, metadata map[string]string) (int64, error) {
	if err := checkOffset(offset); err != nil {
		return 0, err
	}
	name, err := s.objectName(destPath)
	if err != nil {
		return 0, err
	}

	// Cancelling the writer's context aborts the upload without
	// creating the object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(wctx)
	w.ContentType = "application/octet-stream"
	if s.chunkSize > 0 {
		w.ChunkSize = s.chunkSize
	}
	if len(metadata) > 0 {
		w.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			w.Metadata[k] = v
		}
	}

	n, err := copyExact(wctx, w, r, length, DefaultBufferSize)
	if err != nil {
		cancel()
		_ = w.Close()
		return 0, classifyGCS("upload gs://"+s.bucket+"/"+name, err)
	}
	if err := w.Close(); err != nil {
		return 0, classifyGCS("finalize gs://"+s.bucket+"/"+name, err)
	}
	return n, nil
}

// Hash downloads the object at destPath and returns its BLAKE3 digest.
func (s *GCSSink) Hash(ctx context.Context, destPath string) (string, error) {
	name, err := s.objectName(destPath)
	if err != nil {
		return "", err
	}
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return "", classifyGCS("read gs://"+s.bucket+"/"+name, err)
	}
	defer r.Close()
	return HashReader(r)
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}

func classifyGCS(op string, err error) error {
	if errors.Is(err, ErrIOFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %w", ErrQuotaExceeded, op, err)
		case gerr.Code == http.StatusForbidden && quotaReason(gerr):
			return fmt.Errorf("%w: %s: %w", ErrQuotaExceeded, op, err)
		case gerr.Code == http.StatusNotFound, gerr.Code == http.StatusUnauthorized, gerr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}

func quotaReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if strings.Contains(strings.ToLower(item.Reason), "quota") {
			return true
		}
	}
	return false
}
