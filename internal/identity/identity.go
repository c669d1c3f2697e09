// Package identity derives stable file ids from the identity quadruple
// (feed id, source path, mtime, size).
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/bamsammich/relay/internal/model"
)

// Separator joins the identity components in the hash pre-image. Feed ids
// and source paths should not contain it; if they do the id is still a
// valid hash but two different quadruples may share a pre-image.
const Separator = "|"

// Key returns the canonical pre-image "feedID|sourcePath|mtime|size".
func Key(feedID, sourcePath string, mtimeEpochMs, sizeBytes int64) string {
	var b strings.Builder
	b.Grow(len(feedID) + len(sourcePath) + 44)
	b.WriteString(feedID)
	b.WriteString(Separator)
	b.WriteString(sourcePath)
	b.WriteString(Separator)
	b.WriteString(strconv.FormatInt(mtimeEpochMs, 10))
	b.WriteString(Separator)
	b.WriteString(strconv.FormatInt(sizeBytes, 10))
	return b.String()
}

// FileID returns the lowercase hex SHA-256 of Key(...). It is a pure
// function of its inputs.
func FileID(feedID, sourcePath string, mtimeEpochMs, sizeBytes int64) string {
	sum := sha256.Sum256([]byte(Key(feedID, sourcePath, mtimeEpochMs, sizeBytes)))
	return hex.EncodeToString(sum[:])
}

// ForDescriptor returns the file id of d within feedID.
func ForDescriptor(feedID string, d model.FileDescriptor) string {
	return FileID(feedID, d.SourcePath, d.MtimeEpochMs, d.SizeBytes)
}
