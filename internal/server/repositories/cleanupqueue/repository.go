package cleanupqueue

import (
	"context"
	"time"

	"github.com/dkrasnovs/filedepot/internal/server/models"
)

type Repository interface {
	// Enqueue records name as suspected-inconsistent. Re-enqueueing an
	// already queued name refreshes its timestamp and clears resolved.
	Enqueue(ctx context.Context, name string, failedAt time.Time) error
	// SelectPending returns up to limit unresolved entries, oldest first.
	SelectPending(ctx context.Context, limit int) ([]*models.CleanupEntry, error)
	// MarkResolved flips resolved on a single entry.
	MarkResolved(ctx context.Context, name string) error
	// ArchiveResolved deletes resolved entries older than the cutoff and
	// returns how many were removed. Unresolved entries are never touched.
	ArchiveResolved(ctx context.Context, olderThan time.Time) (int64, error)
}
