package cleanupqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/dkrasnovs/filedepot/internal/common"
	"github.com/dkrasnovs/filedepot/internal/dbx"
	"github.com/dkrasnovs/filedepot/internal/server/models"
)

// PostgresRepository implements the cleanup queue over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enqueue(ctx context.Context, name string, failedAt time.Time) error {
	query :=
		`INSERT INTO cleanup_queue (name, failed_at, resolved)
		 VALUES ($1, $2, false)
		 ON CONFLICT (name)
		 DO UPDATE SET
			failed_at = EXCLUDED.failed_at,
			resolved = false;
		 `

	res, err := r.db.ExecContext(ctx, query, name, failedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) SelectPending(ctx context.Context, limit int) ([]*models.CleanupEntry, error) {
	query :=
		`SELECT name, failed_at, resolved FROM cleanup_queue
		 WHERE NOT resolved
		 ORDER BY failed_at
		 LIMIT $1
		 `

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select cleanup entries: %w", err)
	}
	defer rows.Close()

	var result []*models.CleanupEntry
	for rows.Next() {
		var item models.CleanupEntry
		if err := rows.Scan(&item.Name, &item.FailedAt, &item.Resolved); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) MarkResolved(ctx context.Context, name string) error {
	query := `UPDATE cleanup_queue SET resolved = true WHERE name = $1`

	res, err := r.db.ExecContext(ctx, query, name)
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

func (r *PostgresRepository) ArchiveResolved(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM cleanup_queue WHERE resolved AND failed_at < $1`

	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
