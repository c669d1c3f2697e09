package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/relay/internal/logging"
)

func TestSetup_AutoFormatIsJSONWhenNotTTY(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closeFn, err := logging.Setup(logging.Options{Stderr: &buf, Level: slog.LevelInfo})
	require.NoError(t, err)
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("shown", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "shown", rec["msg"])
}

func TestSetup_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _, err := logging.Setup(logging.Options{Stderr: &buf, Format: logging.FormatText})
	require.NoError(t, err)
	logger.Info("hello", "feed", "a")
	assert.Contains(t, buf.String(), "feed=a")
}

func TestSetup_UnknownFormat(t *testing.T) {
	t.Parallel()

	_, _, err := logging.Setup(logging.Options{Stderr: &bytes.Buffer{}, Format: "xml"})
	assert.Error(t, err)
}

func TestSetup_LogFileGetsDebug(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relay.log")
	var buf bytes.Buffer
	logger, closeFn, err := logging.Setup(logging.Options{
		Stderr: &buf,
		Format: logging.FormatText,
		Level:  slog.LevelWarn,
		File:   path,
	})
	require.NoError(t, err)

	logger.Debug("debug detail")
	require.NoError(t, closeFn())

	assert.Empty(t, buf.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug detail"`)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := logging.ParseLevel("loud")
	assert.Error(t, err)
}
