package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/relay/internal/config"
	"github.com/bamsammich/relay/internal/model"
	"github.com/bamsammich/relay/internal/sink"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.SinkLocal, cfg.Sink.Kind)
	assert.Equal(t, sink.DefaultLocalPath, cfg.Sink.Local.Path)
	assert.Equal(t, sink.DefaultBufferSize, cfg.Sink.Local.BufferSize)
	assert.Equal(t, config.TrackerMemory, cfg.Tracker.Kind)
	assert.Nil(t, cfg.Defaults.Verify)
	assert.Empty(t, cfg.FeedTables)
}

func TestLoad_XDGPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "relay"), 0o755))
	writeConfig(t, filepath.Join(dir, "relay"), `
[[feed]]
id = "trades"
source = "/data/trades"
`)

	assert.Equal(t, filepath.Join(dir, "relay", "config.toml"), config.Path())
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Len(t, cfg.FeedTables, 1)
}

func TestLoadFile_FullConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trades.rules"), []byte("+ **/*.csv\n- **/tmp/**\n"), 0o644))
	path := writeConfig(t, dir, `
[sink]
kind = "gcs"

[sink.gcs]
bucket = "landing"
prefix = "relay"
endpoint = "http://localhost:4443/storage/v1/"

[tracker]
kind = "sqlite"
path = "/var/lib/relay/journal.db"

[ssh]
key_file = "/etc/relay/id_ed25519"
port = 2222
timeout = "15s"

[defaults]
verify = true
workers = 4
bwlimit = "10M"

[[feed]]
id = "trades"
source = "sftp://ingest@files.example.com/outbound"
include = ["*.txt"]
filter_file = "trades.rules"
destination_prefix = "trades"

[feed.metadata]
owner = "desk-a"

[[feed]]
id = "archive"
source = "/data/archive"
active = false
`)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, config.SinkGCS, cfg.Sink.Kind)
	assert.Equal(t, "landing", cfg.Sink.GCS.Bucket)
	assert.Equal(t, config.TrackerSQLite, cfg.Tracker.Kind)

	require.NotNil(t, cfg.Defaults.Verify)
	assert.True(t, *cfg.Defaults.Verify)
	require.NotNil(t, cfg.Defaults.Workers)
	assert.Equal(t, 4, *cfg.Defaults.Workers)

	bw, err := cfg.BandwidthLimit()
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), bw)

	opts := cfg.SSHOpts()
	assert.Equal(t, 2222, opts.Port)
	assert.Equal(t, 15*time.Second, opts.Timeout)
	assert.Equal(t, "/etc/relay/id_ed25519", opts.KeyFile)

	feeds, err := cfg.Feeds()
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	trades := feeds[0]
	assert.Equal(t, "trades", trades.ID())
	assert.True(t, trades.Active())
	assert.Equal(t, "trades", trades.DestinationPrefix())
	assert.Equal(t, []string{"*.txt", "**/*.csv"}, trades.IncludePatterns())
	assert.Equal(t, []string{"**/tmp/**"}, trades.ExcludePatterns())
	assert.Equal(t, "desk-a", trades.Metadata()["owner"])

	assert.False(t, feeds[1].Active())

	got, err := cfg.Feed("archive")
	require.NoError(t, err)
	assert.Equal(t, "/data/archive", got.SourceURI())

	_, err = cfg.Feed("missing")
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown sink kind":    "[sink]\nkind = \"s3\"\n",
		"unknown tracker kind": "[tracker]\nkind = \"redis\"\n",
		"sqlite without path":  "[tracker]\nkind = \"sqlite\"\n",
		"postgres without dsn": "[tracker]\nkind = \"postgres\"\n",
		"gcs without bucket":   "[sink]\nkind = \"gcs\"\n",
		"sftp sink not sftp":   "[sink]\nkind = \"sftp\"\n[sink.sftp]\nuri = \"/local/path\"\n",
		"blank feed id":        "[[feed]]\nid = \" \"\nsource = \"/a\"\n",
		"blank feed source":    "[[feed]]\nid = \"a\"\nsource = \"\"\n",
		"duplicate feed ids":   "[[feed]]\nid = \"a\"\nsource = \"/a\"\n[[feed]]\nid = \"a\"\nsource = \"/b\"\n",
		"bad bwlimit":          "[defaults]\nbwlimit = \"fast\"\n",
		"bad ssh timeout":      "[ssh]\ntimeout = \"soon\"\n",
		"unknown key":          "[sink]\nkind = \"local\"\ncolour = \"blue\"\n",
		"malformed toml":       "[sink\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFile(writeConfig(t, t.TempDir(), content))
			assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFeeds_MissingFilterFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), `
[[feed]]
id = "a"
source = "/a"
filter_file = "absent.rules"
`)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	_, err = cfg.Feeds()
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestBandwidthLimit_Unset(t *testing.T) {
	t.Parallel()
	bw, err := config.Config{}.BandwidthLimit()
	require.NoError(t, err)
	assert.Zero(t, bw)
}
