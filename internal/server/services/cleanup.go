package services

import (
	"context"
	"errors"
	"time"

	"github.com/dkrasnovs/filedepot/internal/common"
	"github.com/dkrasnovs/filedepot/internal/server/metrics"
	"github.com/dkrasnovs/filedepot/internal/server/models"
)

// ProcessCleanupQueue drains up to batch pending queue entries,
// re-deriving the true state of each name from both stores. It is the
// only mechanism that converges entries the synchronous compensation
// paths could not resolve. Entries are independent: one entry's failure
// never blocks the rest.
//
// Returns the number of entries that reached a decision.
func (s *FileService) ProcessCleanupQueue(ctx context.Context, batch int) (int, error) {
	queueRepo := s.repomanager.CleanupQueue(s.db)

	entries, err := queueRepo.SelectPending(ctx, batch)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		if err := s.resolveEntry(ctx, entry); err != nil {
			s.logger.Warn(ctx, "cleanup entry left pending", "name", entry.Name, "error", err.Error())
			continue
		}
		processed++
	}

	return processed, nil
}

// resolveEntry repairs or flags a single queue entry.
//
// No metadata row   → correct end state is "fully deleted": remove the
// blob if present, mark resolved either way (idempotent convergence).
// Metadata row held → correct end state is "fully present": if the blob
// exists the stores already agree, mark resolved; if it is gone the bytes
// are unrecoverable — flag for operator attention instead of fabricating
// data, leaving the entry unresolved.
func (s *FileService) resolveEntry(ctx context.Context, entry *models.CleanupEntry) error {
	fileRepo := s.repomanager.Files(s.db)
	queueRepo := s.repomanager.CleanupQueue(s.db)

	_, err := fileRepo.GetByName(ctx, entry.Name)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		exists, err := s.blobs.Exists(ctx, entry.Name)
		if err != nil {
			return err
		}
		if exists {
			if err := s.blobs.Delete(ctx, entry.Name); err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			s.logger.Info(ctx, "cleanup removed orphaned blob", "name", entry.Name)
		}
		metrics.CleanupResolvedTotal.Inc()
		return queueRepo.MarkResolved(ctx, entry.Name)

	case err != nil:
		return err

	default:
		exists, err := s.blobs.Exists(ctx, entry.Name)
		if err != nil {
			return err
		}
		if !exists {
			// metadata without bytes cannot be repaired here
			s.logger.Error(ctx, "cleanup found unrecoverable divergence, needs attention",
				"name", entry.Name, "failed_at", entry.FailedAt)
			metrics.CleanupUnresolvedTotal.Inc()
			return nil
		}
		metrics.CleanupResolvedTotal.Inc()
		return queueRepo.MarkResolved(ctx, entry.Name)
	}
}

// ArchiveResolved deletes resolved queue entries older than retention.
func (s *FileService) ArchiveResolved(ctx context.Context, retention time.Duration) (int64, error) {
	queueRepo := s.repomanager.CleanupQueue(s.db)
	return queueRepo.ArchiveResolved(ctx, time.Now().Add(-retention))
}
