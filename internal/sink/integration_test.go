//go:build integration

package sink_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"

	"github.com/bamsammich/relay/internal/sink"
)

// startFakeGCS runs fsouza/fake-gcs-server and returns its JSON API endpoint.
func startFakeGCS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "fsouza/fake-gcs-server:latest",
			ExposedPorts: []string{"4443/tcp"},
			Cmd:          []string{"-scheme", "http", "-port", "4443"},
			WaitingFor:   wait.ForListeningPort("4443/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	}
	ctr, err := testcontainers.GenericContainer(ctx, req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "4443/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s/storage/v1/", host, port.Port())
}

func TestGCSSink_Integration(t *testing.T) {
	endpoint := startFakeGCS(t)
	ctx := context.Background()

	s, err := sink.NewGCSSink(ctx, sink.GCSConfig{
		Bucket:    "relay-test",
		Prefix:    "landing",
		Endpoint:  endpoint,
		Anonymous: true,
	})
	require.NoError(t, err)
	defer s.Close()

	gcs, err := storage.NewClient(ctx, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	require.NoError(t, err)
	defer gcs.Close()
	require.NoError(t, gcs.Bucket("relay-test").Create(ctx, "relay-project", nil))

	n, err := s.Write(ctx, "output/test.txt", strings.NewReader("Hello, world!"), 0, 13,
		map[string]string{sink.MetaSource: "/in/test.txt", sink.MetaSize: "13"})
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	obj := gcs.Bucket("relay-test").Object("landing/output/test.txt")
	r, err := obj.NewReader(ctx)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", string(data))

	attrs, err := obj.Attrs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/in/test.txt", attrs.Metadata[sink.MetaSource])

	// A short stream must not replace the published object.
	_, err = s.Write(ctx, "output/test.txt", strings.NewReader("bad"), 0, 13, nil)
	require.ErrorIs(t, err, sink.ErrIOFailure)

	r, err = obj.NewReader(ctx)
	require.NoError(t, err)
	data, err = io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", string(data))

	_, err = obj.Attrs(ctx)
	require.NotErrorIs(t, err, storage.ErrObjectNotExist)

	want, err := sink.HashReader(strings.NewReader("Hello, world!"))
	require.NoError(t, err)
	got, err := s.Hash(ctx, "output/test.txt")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
