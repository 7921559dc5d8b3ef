// Package services contains the dual-store coordination logic: the upload
// and delete protocols with their compensating actions, and the cleanup
// queue processor that absorbs failures compensation could not resolve.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"time"

	"github.com/google/uuid"

	"github.com/dkrasnovs/filedepot/internal/common"
	"github.com/dkrasnovs/filedepot/internal/dbx"
	"github.com/dkrasnovs/filedepot/internal/logging"
	"github.com/dkrasnovs/filedepot/internal/server/blobstore"
	"github.com/dkrasnovs/filedepot/internal/server/metrics"
	"github.com/dkrasnovs/filedepot/internal/server/models"
	"github.com/dkrasnovs/filedepot/internal/server/repositories/repomanager"
	"github.com/dkrasnovs/filedepot/internal/transform"
	"github.com/dkrasnovs/filedepot/internal/verify"
)

// FileService orchestrates every operation that touches both stores.
// Store operations within one call are strictly sequential: each step's
// success is a precondition for the next, and every failure point has a
// coded compensation.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	transformer transform.Transformer
	logger      logging.Logger
}

func NewFileService(db *sql.DB, rm repomanager.RepositoryManager, blobs blobstore.Store,
	transformer transform.Transformer, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		transformer: transformer,
		logger:      logger,
	}
}

// GenerateName builds the unique storage name: date path plus a random
// component. A collision surfaces as a metadata uniqueness violation and
// is handled as an ordinary creation failure, never specially detected.
func GenerateName(ext string) string {
	d := time.Now()
	return fmt.Sprintf("%d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

// Upload runs the upload protocol: transform, blob write, metadata insert.
//
// On a metadata failure the just-written blob is deleted; if that
// compensation fails too, the name is enqueued for reconciliation before
// the original error is surfaced. A caller receiving an error therefore
// sees either both stores clean or the divergence recorded in the queue.
func (s *FileService) Upload(ctx context.Context, d *verify.Descriptor, opts transform.Options) (*models.FileRecord, error) {
	// transform failure aborts before any store is touched
	data, ext, err := s.transformer.Transform(d.Data, d.Extension, opts)
	if err != nil {
		return nil, err
	}

	name := GenerateName(ext)

	if err := s.blobs.Save(ctx, name, data); err != nil {
		// nothing to roll back yet
		return nil, err
	}

	record := &models.FileRecord{
		Name:        name,
		DisplayName: d.DisplayName,
		StoragePath: s.blobs.Path(name),
		MediaType:   mediaTypeForExtension(ext, d.MediaType),
		ByteSize:    int64(len(data)),
	}

	fileRepo := s.repomanager.Files(s.db)
	if err := fileRepo.Create(ctx, record); err != nil {
		s.compensateUpload(ctx, name, err)
		return nil, err
	}

	metrics.UploadsTotal.Inc()
	return record, nil
}

// mediaTypeForExtension re-derives the media type from the extension the
// transformer returned: the stored type must describe the stored bytes,
// not the bytes the client sent. Falls back to the declared type for
// extensions the mime table does not know.
func mediaTypeForExtension(ext, declared string) string {
	t := mime.TypeByExtension(ext)
	if t == "" {
		return declared
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return declared
	}
	return mediaType
}

// compensateUpload removes the blob written before a failed metadata
// insert. If the blob cannot be removed it is orphaned; the name goes to
// the cleanup queue so the processor can converge it later.
func (s *FileService) compensateUpload(ctx context.Context, name string, cause error) {
	metrics.CompensationsTotal.Inc()

	err := s.blobs.Delete(ctx, name)
	if err == nil || errors.Is(err, common.ErrorNotFound) {
		return
	}

	s.logger.Error(ctx, "upload compensation failed, enqueueing",
		"name", name, "cause", cause.Error(), "compensation", err.Error())
	metrics.CriticalInconsistenciesTotal.Inc()
	s.enqueue(ctx, name)
}

// Delete runs the delete protocol: metadata row first, then the blob.
// A blob that is already absent is treated as deleted (idempotent). A blob
// deletion failure triggers re-insertion of the metadata row; if that
// fails too, metadata is gone, the blob remains and the record cannot be
// restored — the most severe failure mode, surfaced as a distinguished
// critical error after the name is enqueued.
func (s *FileService) Delete(ctx context.Context, name string) (*models.FileRecord, error) {
	fileRepo := s.repomanager.Files(s.db)

	record, err := fileRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := fileRepo.Delete(ctx, name); err != nil {
		// nothing succeeded yet, no compensation needed
		return nil, err
	}

	err = s.blobs.Delete(ctx, name)
	if err == nil || errors.Is(err, common.ErrorNotFound) {
		metrics.DeletesTotal.Inc()
		return record, nil
	}

	metrics.CompensationsTotal.Inc()
	if reinsertErr := fileRepo.Create(ctx, record); reinsertErr != nil {
		s.logger.Error(ctx, "delete compensation failed, enqueueing",
			"name", name, "cause", err.Error(), "compensation", reinsertErr.Error())
		metrics.CriticalInconsistenciesTotal.Inc()
		s.enqueue(ctx, name)
		return nil, &common.CriticalInconsistencyError{Name: name, Cause: err, Compensation: reinsertErr}
	}

	// both stores still agree, the file is fully present
	return nil, err
}

// enqueue is the last line of defense. Its own failure is logged but not
// escalated: there is no second-level queue.
func (s *FileService) enqueue(ctx context.Context, name string) {
	queueRepo := s.repomanager.CleanupQueue(s.db)
	if err := queueRepo.Enqueue(ctx, name, time.Now()); err != nil {
		s.logger.Error(ctx, "cleanup enqueue failed", "name", name, "error", err.Error())
	}
}

// URL maps a stored name to its public path. Pure; built at response
// time, never persisted.
func (s *FileService) URL(name string) string {
	return s.blobs.URL(name)
}

// Get returns the metadata record for name.
func (s *FileService) Get(ctx context.Context, name string) (*models.FileRecord, error) {
	return s.repomanager.Files(s.db).GetByName(ctx, name)
}

// Download returns the metadata record and the stored bytes for name. A
// record whose bytes are gone is the unrecoverable divergence the queue
// flags; it is reported as a read failure, never as absence.
func (s *FileService) Download(ctx context.Context, name string) (*models.FileRecord, []byte, error) {
	record, err := s.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.blobs.Load(ctx, name)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "blob missing for existing record", "name", name)
			return nil, nil, fmt.Errorf("%w: %s", common.ErrorStorageRead, name)
		}
		return nil, nil, err
	}

	return record, data, nil
}

// List returns metadata records, newest first.
func (s *FileService) List(ctx context.Context, limit, offset int) ([]*models.FileRecord, error) {
	return s.repomanager.Files(s.db).List(ctx, limit, offset)
}

// Stats returns the metadata aggregates.
func (s *FileService) Stats(ctx context.Context) (*models.FileStats, error) {
	return s.repomanager.Files(s.db).Stats(ctx)
}

// Rename updates the display name, the only client-updatable field. The
// read and the update run in one transaction so the returned record
// reflects exactly what was written.
func (s *FileService) Rename(ctx context.Context, name, displayName string) (*models.FileRecord, error) {
	var record *models.FileRecord

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)
		if err := repo.UpdateDisplayName(ctx, name, displayName); err != nil {
			return err
		}
		var err error
		record, err = repo.GetByName(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
