package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/relay/internal/model"
)

func TestFileID_Deterministic(t *testing.T) {
	id1 := FileID("feed", "/data/a.csv", 1700000000000, 42)
	id2 := FileID("feed", "/data/a.csv", 1700000000000, 42)
	assert.Equal(t, id1, id2)
}

func TestFileID_Format(t *testing.T) {
	inputs := []struct {
		feed  string
		path  string
		mtime int64
		size  int64
	}{
		{"feed", "/a", 0, 0},
		{"trades-eu", "/data/deep/dir/file.txt", 1712345678901, 1 << 40},
		{"ünïcødé", "/données/été.csv", -5, 7},
	}
	for _, in := range inputs {
		id := FileID(in.feed, in.path, in.mtime, in.size)
		assert.Len(t, id, 64)
		assert.Regexp(t, "^[0-9a-f]{64}$", id)
	}
}

func TestFileID_MatchesSHA256OfKey(t *testing.T) {
	sum := sha256.Sum256([]byte("feed|/data/a.csv|1000|7"))
	assert.Equal(t, hex.EncodeToString(sum[:]), FileID("feed", "/data/a.csv", 1000, 7))
	assert.Equal(t, "feed|/data/a.csv|1000|7", Key("feed", "/data/a.csv", 1000, 7))
}

func TestFileID_DistinctComponents(t *testing.T) {
	base := FileID("feed", "/a", 1, 1)
	seen := map[string]string{base: "base"}
	for name, id := range map[string]string{
		"feed":  FileID("feed2", "/a", 1, 1),
		"path":  FileID("feed", "/b", 1, 1),
		"mtime": FileID("feed", "/a", 2, 1),
		"size":  FileID("feed", "/a", 1, 2),
	} {
		_, dup := seen[id]
		assert.False(t, dup, fmt.Sprintf("%s variation collided", name))
		seen[id] = name
	}
}

func TestForDescriptor(t *testing.T) {
	d := model.FileDescriptor{SourcePath: "/data/x", SizeBytes: 10, MtimeEpochMs: 99}
	assert.Equal(t, FileID("f", "/data/x", 99, 10), ForDescriptor("f", d))
}
