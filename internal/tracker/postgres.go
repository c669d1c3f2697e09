package tracker

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bamsammich/relay/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ Tracker = (*PostgresTracker)(nil)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTracker persists records in PostgreSQL.
type PostgresTracker struct {
	pool  *pgxpool.Pool
	now   func() time.Time
	owned bool
}

// OpenPostgres applies migrations and connects to the database at dsn.
// dsn must be a postgres:// or postgresql:// URL.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger, opts ...Option) (*PostgresTracker, error) {
	if err := Migrate(dsn, logger); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse tracker dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create tracker pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect tracker db: %w", err)
	}

	t := NewPostgresTracker(pool, opts...)
	t.owned = true
	return t, nil
}

// NewPostgresTracker uses an existing pool whose schema is already
// migrated. Close does not close a pool passed in this way.
func NewPostgresTracker(pool *pgxpool.Pool, opts ...Option) *PostgresTracker {
	o := buildOptions(opts)
	return &PostgresTracker{pool: pool, now: o.now}
}

// Migrate applies the embedded schema migrations.
func Migrate(dsn string, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if logger != nil {
		version, dirty, _ := m.Version()
		logger.Debug("tracker migrations applied",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
	return nil
}

// migrateURL rewrites a postgres URL to the scheme the pgx/v5 migrate
// driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func (p *PostgresTracker) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresTracker) UpsertFile(ctx context.Context, rec model.FileRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO file_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (file_id) DO UPDATE SET
			feed_id        = EXCLUDED.feed_id,
			source_path    = EXCLUDED.source_path,
			size_bytes     = EXCLUDED.size_bytes,
			mtime_epoch_ms = EXCLUDED.mtime_epoch_ms,
			checksum_md5   = EXCLUDED.checksum_md5,
			status         = EXCLUDED.status,
			dest_uri       = EXCLUDED.dest_uri,
			copied_at      = COALESCE(EXCLUDED.copied_at, file_records.copied_at),
			attempts       = GREATEST(EXCLUDED.attempts, file_records.attempts)`,
		rec.FileID, rec.FeedID, rec.SourcePath, rec.SizeBytes, rec.MtimeEpochMs,
		textOrNil(rec.ChecksumMD5), string(rec.Status), textOrNil(rec.DestURI),
		rec.CopiedAt, rec.Attempts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("upsert %s: %w: %w", rec.FileID, ErrIdentityConflict, err)
		}
		return fmt.Errorf("upsert %s: %w", rec.FileID, err)
	}
	return nil
}

func (p *PostgresTracker) FindByIdentity(ctx context.Context, feedID, sourcePath string, mtimeMs, size int64) (model.FileRecord, bool, error) {
	return findOne(ctx, p.pool, `SELECT `+recordColumns+` FROM file_records
		WHERE feed_id = $1 AND source_path = $2 AND mtime_epoch_ms = $3 AND size_bytes = $4`,
		feedID, sourcePath, mtimeMs, size)
}

// UpdateStatus locks the row, applies the transition and writes it back
// in one transaction.
func (p *PostgresTracker) UpdateStatus(ctx context.Context, fileID string, status model.FileStatus, destURI string) error {
	err := p.runInTx(ctx, func(tx pgx.Tx) error {
		rec, ok, err := findOne(ctx, tx, `SELECT `+recordColumns+` FROM file_records
			WHERE file_id = $1 FOR UPDATE`, fileID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRecordNotFound
		}

		applyStatus(&rec, status, destURI, p.now())
		_, err = tx.Exec(ctx, `UPDATE file_records
			SET status = $2, dest_uri = $3, attempts = $4, copied_at = $5
			WHERE file_id = $1`,
			fileID, string(rec.Status), textOrNil(rec.DestURI), rec.Attempts, rec.CopiedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("update %s to %s: %w", fileID, status, err)
	}
	return nil
}

func (p *PostgresTracker) ShouldSkip(ctx context.Context, feedID, sourcePath string, mtimeMs, size int64) (bool, error) {
	var status string
	err := p.pool.QueryRow(ctx, `SELECT status FROM file_records
		WHERE feed_id = $1 AND source_path = $2 AND mtime_epoch_ms = $3 AND size_bytes = $4`,
		feedID, sourcePath, mtimeMs, size).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("should skip %s: %w", sourcePath, err)
	}
	return model.FileStatus(status) == model.StatusCopied, nil
}

func (p *PostgresTracker) Get(ctx context.Context, fileID string) (model.FileRecord, bool, error) {
	return findOne(ctx, p.pool, `SELECT `+recordColumns+` FROM file_records WHERE file_id = $1`, fileID)
}

func (p *PostgresTracker) ListByFeed(ctx context.Context, feedID string) ([]model.FileRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+recordColumns+` FROM file_records
		WHERE feed_id = $1 ORDER BY source_path, mtime_epoch_ms`, feedID)
	if err != nil {
		return nil, fmt.Errorf("list feed %s: %w", feedID, err)
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		rec, err := scanPgRecord(rows)
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

func (p *PostgresTracker) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}

func findOne(ctx context.Context, db DBTX, query string, args ...any) (model.FileRecord, bool, error) {
	rec, err := scanPgRecord(db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.FileRecord{}, false, nil
	}
	if err != nil {
		return model.FileRecord{}, false, fmt.Errorf("read record: %w", err)
	}
	return rec, true, nil
}

func scanPgRecord(row pgx.Row) (model.FileRecord, error) {
	var (
		rec      model.FileRecord
		status   string
		checksum *string
		destURI  *string
	)
	err := row.Scan(&rec.FileID, &rec.FeedID, &rec.SourcePath, &rec.SizeBytes, &rec.MtimeEpochMs,
		&checksum, &status, &destURI, &rec.CopiedAt, &rec.Attempts)
	if err != nil {
		return model.FileRecord{}, err
	}
	rec.Status, err = model.ParseFileStatus(status)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("record %s: %w", rec.FileID, err)
	}
	if checksum != nil {
		rec.ChecksumMD5 = *checksum
	}
	if destURI != nil {
		rec.DestURI = *destURI
	}
	return rec, nil
}

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueViolation reports a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Truncate deletes every record. It exists for tests and maintenance.
func (p *PostgresTracker) Truncate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE file_records`); err != nil {
		return fmt.Errorf("truncate file_records: %w", err)
	}
	return nil
}
