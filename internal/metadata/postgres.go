package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"tmpshare/internal/lifecycle"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore persists records in the files table. Timestamps are unix
// seconds so that expiry comparisons match the engine's clock exactly.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open pool. The schema is created by
// db.RunMigrations.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const fileColumns = `id, stored_name, original_name, download_name, created_at, first_download_at, expire_at`

// Insert adds a record; a duplicate id yields lifecycle.ErrAlreadyExists.
func (s *PostgresStore) Insert(ctx context.Context, rec lifecycle.FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.FileID,
		rec.StoredName,
		rec.OriginalName,
		rec.DownloadName,
		rec.CreatedAt.Unix(),
		nullUnix(rec.FirstDownloadAt),
		nullUnix(rec.ExpireAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return lifecycle.ErrAlreadyExists
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// Get loads one record by id.
func (s *PostgresStore) Get(ctx context.Context, fileID string) (lifecycle.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, fileID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return lifecycle.FileRecord{}, lifecycle.ErrNotFound
	}
	if err != nil {
		return lifecycle.FileRecord{}, fmt.Errorf("select file: %w", err)
	}
	return rec, nil
}

// Arm is a single conditional UPDATE: the row lock taken by PostgreSQL
// lets exactly one concurrent caller match first_download_at IS NULL.
func (s *PostgresStore) Arm(ctx context.Context, fileID string, firstDownloadAt, expireAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files
		 SET first_download_at = $2, expire_at = $3
		 WHERE id = $1 AND first_download_at IS NULL`,
		fileID,
		firstDownloadAt.Unix(),
		expireAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("arm file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("arm file: %w", err)
	}
	return n == 1, nil
}

// Delete removes the row; a missing row is fine.
func (s *PostgresStore) Delete(ctx context.Context, fileID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete file rows affected: %w", err)
	}
	return n == 1, nil
}

// ListExpired uses the partial index on expire_at.
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]lifecycle.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE expire_at IS NOT NULL AND expire_at <= $1
		 ORDER BY expire_at ASC`,
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired: %w", err)
	}
	return out, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (lifecycle.FileRecord, error) {
	var (
		rec             lifecycle.FileRecord
		createdAt       int64
		firstDownloadAt sql.NullInt64
		expireAt        sql.NullInt64
	)
	if err := row.Scan(
		&rec.FileID,
		&rec.StoredName,
		&rec.OriginalName,
		&rec.DownloadName,
		&createdAt,
		&firstDownloadAt,
		&expireAt,
	); err != nil {
		return lifecycle.FileRecord{}, err
	}
	rec.CreatedAt = unixTime(createdAt)
	rec.FirstDownloadAt = timeFromNull(firstDownloadAt)
	rec.ExpireAt = timeFromNull(expireAt)
	return rec, nil
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := unixTime(v.Int64)
	return &t
}
