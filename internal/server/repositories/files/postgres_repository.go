package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkrasnovs/filedepot/internal/common"
	"github.com/dkrasnovs/filedepot/internal/dbx"
	"github.com/dkrasnovs/filedepot/internal/server/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new file record. A primary-key collision on name maps
// to common.ErrorConflict. A zero CreatedAt is assigned by the database;
// a non-zero one is written as-is, so a compensating re-insert restores
// the original row, timestamp included.
func (r *PostgresRepository) Create(ctx context.Context, file *models.FileRecord) error {
	if !file.CreatedAt.IsZero() {
		query :=
			`INSERT INTO files (name, display_name, storage_path, media_type, byte_size, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 `

		_, err := r.db.ExecContext(ctx, query,
			file.Name, file.DisplayName, file.StoragePath, file.MediaType, file.ByteSize, file.CreatedAt)
		return mapInsertError(err)
	}

	query :=
		`INSERT INTO files (name, display_name, storage_path, media_type, byte_size)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		file.Name, file.DisplayName, file.StoragePath, file.MediaType, file.ByteSize).Scan(&file.CreatedAt)
	return mapInsertError(err)
}

func mapInsertError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return common.ErrorConflict
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.FileRecord, error) {
	query :=
		`SELECT name, display_name, storage_path, media_type, byte_size, created_at FROM files
		 WHERE name = $1
		 `

	file := &models.FileRecord{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&file.Name, &file.DisplayName, &file.StoragePath, &file.MediaType, &file.ByteSize, &file.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return file, nil
}

// Delete removes the record by name. Exactly one row must be affected;
// zero rows maps to common.ErrorNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM files WHERE name = $1`

	res, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]*models.FileRecord, error) {
	query :=
		`SELECT name, display_name, storage_path, media_type, byte_size, created_at FROM files
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2
		 `

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		var item models.FileRecord
		if err := rows.Scan(&item.Name, &item.DisplayName, &item.StoragePath, &item.MediaType, &item.ByteSize, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDisplayName changes the only client-updatable column. The SET
// clause is fixed; caller-supplied column names are never interpolated.
func (r *PostgresRepository) UpdateDisplayName(ctx context.Context, name, displayName string) error {
	query := `UPDATE files SET display_name = $2 WHERE name = $1`

	res, err := r.db.ExecContext(ctx, query, name, displayName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*models.FileStats, error) {
	stats := &models.FileStats{}

	query := `SELECT COUNT(*), COALESCE(SUM(byte_size), 0) FROM files`
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalFiles, &stats.TotalBytes); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	byType :=
		`SELECT media_type, COUNT(*), COALESCE(SUM(byte_size), 0) FROM files
		 GROUP BY media_type
		 ORDER BY media_type
		 `
	rows, err := r.db.QueryContext(ctx, byType)
	if err != nil {
		return nil, fmt.Errorf("failed to select stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc models.TypeCount
		if err := rows.Scan(&tc.MediaType, &tc.Count, &tc.Bytes); err != nil {
			return nil, err
		}
		stats.ByType = append(stats.ByType, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
