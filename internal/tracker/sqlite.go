package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bamsammich/relay/internal/model"
)

var _ Tracker = (*SQLiteTracker)(nil)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS file_records (
		file_id        TEXT PRIMARY KEY,
		feed_id        TEXT NOT NULL,
		source_path    TEXT NOT NULL,
		size_bytes     INTEGER NOT NULL,
		mtime_epoch_ms INTEGER NOT NULL,
		checksum_md5   TEXT,
		status         TEXT NOT NULL,
		dest_uri       TEXT,
		copied_at      INTEGER,
		attempts       INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS file_records_identity
		ON file_records (feed_id, source_path, mtime_epoch_ms, size_bytes);
`

const recordColumns = `file_id, feed_id, source_path, size_bytes, mtime_epoch_ms,
	checksum_md5, status, dest_uri, copied_at, attempts`

// SQLiteTracker persists records in a local SQLite database.
type SQLiteTracker struct {
	db   *sql.DB
	now  func() time.Time
	path string
}

// OpenSQLite opens (or creates) the database at path. ":memory:" keeps
// the journal in memory for the lifetime of the tracker.
func OpenSQLite(path string, opts ...Option) (*SQLiteTracker, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create tracker dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	o := buildOptions(opts)
	return &SQLiteTracker{db: db, now: o.now, path: path}, nil
}

func (s *SQLiteTracker) Path() string { return s.path }

func (s *SQLiteTracker) UpsertFile(ctx context.Context, rec model.FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id) DO UPDATE SET
			feed_id        = excluded.feed_id,
			source_path    = excluded.source_path,
			size_bytes     = excluded.size_bytes,
			mtime_epoch_ms = excluded.mtime_epoch_ms,
			checksum_md5   = excluded.checksum_md5,
			status         = excluded.status,
			dest_uri       = excluded.dest_uri,
			copied_at      = COALESCE(excluded.copied_at, file_records.copied_at),
			attempts       = MAX(excluded.attempts, file_records.attempts)`,
		rec.FileID, rec.FeedID, rec.SourcePath, rec.SizeBytes, rec.MtimeEpochMs,
		nullString(rec.ChecksumMD5), string(rec.Status), nullString(rec.DestURI),
		nullMillis(rec.CopiedAt), rec.Attempts,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("upsert %s: %w: %w", rec.FileID, ErrIdentityConflict, err)
		}
		return fmt.Errorf("upsert %s: %w", rec.FileID, err)
	}
	return nil
}

func (s *SQLiteTracker) FindByIdentity(ctx context.Context, feedID, sourcePath string, mtimeMs, size int64) (model.FileRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM file_records
		WHERE feed_id = ? AND source_path = ? AND mtime_epoch_ms = ? AND size_bytes = ?`,
		feedID, sourcePath, mtimeMs, size)
	return scanOne(row)
}

// UpdateStatus applies the transition in a single statement, which SQLite
// executes atomically.
func (s *SQLiteTracker) UpdateStatus(ctx context.Context, fileID string, status model.FileStatus, destURI string) error {
	if status != model.StatusCopied {
		destURI = ""
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE file_records SET
			status    = ?,
			dest_uri  = ?,
			attempts  = attempts + CASE WHEN ? = 'FAILED' THEN 1 ELSE 0 END,
			copied_at = CASE WHEN ? = 'COPIED' THEN ? ELSE copied_at END
		WHERE file_id = ?`,
		string(status), nullString(destURI), string(status), string(status),
		s.now().UnixMilli(), fileID,
	)
	if err != nil {
		return fmt.Errorf("update %s to %s: %w", fileID, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s to %s: %w", fileID, status, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s to %s: %w", fileID, status, ErrRecordNotFound)
	}
	return nil
}

func (s *SQLiteTracker) ShouldSkip(ctx context.Context, feedID, sourcePath string, mtimeMs, size int64) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM file_records
		WHERE feed_id = ? AND source_path = ? AND mtime_epoch_ms = ? AND size_bytes = ?`,
		feedID, sourcePath, mtimeMs, size).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("should skip %s: %w", sourcePath, err)
	}
	return model.FileStatus(status) == model.StatusCopied, nil
}

func (s *SQLiteTracker) Get(ctx context.Context, fileID string) (model.FileRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM file_records WHERE file_id = ?`, fileID)
	return scanOne(row)
}

func (s *SQLiteTracker) ListByFeed(ctx context.Context, feedID string) ([]model.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM file_records
		WHERE feed_id = ? ORDER BY source_path, mtime_epoch_ms`, feedID)
	if err != nil {
		return nil, fmt.Errorf("list feed %s: %w", feedID, err)
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list feed %s: %w", feedID, err)
	}
	return out, nil
}

func (s *SQLiteTracker) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.FileRecord, error) {
	var (
		rec      model.FileRecord
		status   string
		checksum sql.NullString
		destURI  sql.NullString
		copiedAt sql.NullInt64
	)
	err := sc.Scan(&rec.FileID, &rec.FeedID, &rec.SourcePath, &rec.SizeBytes, &rec.MtimeEpochMs,
		&checksum, &status, &destURI, &copiedAt, &rec.Attempts)
	if err != nil {
		return model.FileRecord{}, err
	}
	rec.Status, err = model.ParseFileStatus(status)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("record %s: %w", rec.FileID, err)
	}
	rec.ChecksumMD5 = checksum.String
	rec.DestURI = destURI.String
	if copiedAt.Valid {
		t := time.UnixMilli(copiedAt.Int64)
		rec.CopiedAt = &t
	}
	return rec, nil
}

func scanOne(row *sql.Row) (model.FileRecord, bool, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileRecord{}, false, nil
	}
	if err != nil {
		return model.FileRecord{}, false, fmt.Errorf("read record: %w", err)
	}
	return rec, true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
