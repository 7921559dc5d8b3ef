package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnovs/filedepot/internal/common"
	"github.com/dkrasnovs/filedepot/internal/dbx"
	"github.com/dkrasnovs/filedepot/internal/logging"
	"github.com/dkrasnovs/filedepot/internal/server/models"
	"github.com/dkrasnovs/filedepot/internal/server/repositories/cleanupqueue"
	"github.com/dkrasnovs/filedepot/internal/server/repositories/files"
	"github.com/dkrasnovs/filedepot/internal/server/repositories/repomanager"
	"github.com/dkrasnovs/filedepot/internal/transform"
	"github.com/dkrasnovs/filedepot/internal/verify"
)

// -------- test fakes --------

type fakeFilesRepo struct {
	files.Repository

	mu      sync.Mutex
	records map[string]*models.FileRecord

	createErr error
	deleteErr error

	createCalls int
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{records: map[string]*models.FileRecord{}}
}

func (f *fakeFilesRepo) Create(ctx context.Context, rec *models.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.records[rec.Name]; ok {
		return common.ErrorConflict
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	f.records[rec.Name] = rec
	return nil
}

func (f *fakeFilesRepo) GetByName(ctx context.Context, name string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func (f *fakeFilesRepo) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.records[name]; !ok {
		return common.ErrorNotFound
	}
	delete(f.records, name)
	return nil
}

func (f *fakeFilesRepo) UpdateDisplayName(ctx context.Context, name, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[name]
	if !ok {
		return common.ErrorNotFound
	}
	rec.DisplayName = displayName
	return nil
}

type fakeQueueRepo struct {
	cleanupqueue.Repository

	mu      sync.Mutex
	entries map[string]*models.CleanupEntry

	enqueueErr error
	selectErr  error
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{entries: map[string]*models.CleanupEntry{}}
}

func (f *fakeQueueRepo) Enqueue(ctx context.Context, name string, failedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.entries[name] = &models.CleanupEntry{Name: name, FailedAt: failedAt}
	return nil
}

func (f *fakeQueueRepo) SelectPending(ctx context.Context, limit int) ([]*models.CleanupEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	var out []*models.CleanupEntry
	for _, e := range f.entries {
		if !e.Resolved && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) ArchiveResolved(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for name, e := range f.entries {
		if e.Resolved && e.FailedAt.Before(olderThan) {
			delete(f.entries, name)
			n++
		}
	}
	return n, nil
}

func (f *fakeQueueRepo) MarkResolved(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[name]
	if !ok {
		return common.ErrorNotFound
	}
	e.Resolved = true
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	f *fakeFilesRepo
	q *fakeQueueRepo
}

func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository               { return m.f }
func (m *fakeRepoManager) CleanupQueue(db dbx.DBTX) cleanupqueue.Repository { return m.q }

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	saveErr   error
	deleteErr error
	existsErr error
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (s *memStore) Save(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.blobs[name] = data
	return nil
}

func (s *memStore) Load(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return data, nil
}

func (s *memStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.blobs[name]; !ok {
		return common.ErrorNotFound
	}
	delete(s.blobs, name)
	return nil
}

func (s *memStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.blobs[name]
	return ok, nil
}

func (s *memStore) Path(name string) string { return "mem/" + name }

func (s *memStore) URL(name string) string { return "/files/" + name }

// -------- helpers --------

type testEnv struct {
	svc   *FileService
	repo  *fakeFilesRepo
	queue *fakeQueueRepo
	store *memStore
	db    *sql.DB
	mock  sqlmock.Sqlmock
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := newFakeFilesRepo()
	queue := newFakeQueueRepo()
	store := newMemStore()
	logger := logging.NewSlogLogger(newDiscardSlog())

	svc := NewFileService(db, &fakeRepoManager{f: repo, q: queue}, store, transform.Noop{}, logger)
	return &testEnv{svc: svc, repo: repo, queue: queue, store: store, db: db, mock: mock}
}

func pngDescriptor() *verify.Descriptor {
	data := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, 1, 2, 3)
	return &verify.Descriptor{
		DisplayName: "photo.png",
		Extension:   ".png",
		MediaType:   "image/png",
		Size:        int64(len(data)),
		Data:        data,
	}
}

// -------- upload protocol --------

func TestUpload_Success(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	d := pngDescriptor()
	rec, err := env.svc.Upload(ctx, d, transform.Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.Name)
	assert.Equal(t, "photo.png", rec.DisplayName)
	assert.Equal(t, "image/png", rec.MediaType)
	assert.Equal(t, d.Size, rec.ByteSize)
	assert.Equal(t, env.store.Path(rec.Name), rec.StoragePath, "metadata persists the store path, not the public URL")

	// both stores agree
	stored, err := env.store.Load(ctx, rec.Name)
	require.NoError(t, err)
	assert.Equal(t, d.Data, stored)
	_, err = env.repo.GetByName(ctx, rec.Name)
	require.NoError(t, err)
}

// jpegReencoder stands in for an image transformer that changed the
// output format.
type jpegReencoder struct{}

func (jpegReencoder) Transform(data []byte, ext string, opts transform.Options) ([]byte, string, error) {
	return data, ".jpg", nil
}

func TestUpload_FormatChangeUpdatesMediaType(t *testing.T) {
	env := newEnv(t)
	env.svc.transformer = jpegReencoder{}
	ctx := context.Background()

	rec, err := env.svc.Upload(ctx, pngDescriptor(), transform.Options{Format: "jpeg"})
	require.NoError(t, err)

	// the stored type describes the stored bytes, not the uploaded ones
	assert.True(t, strings.HasSuffix(rec.Name, ".jpg"))
	assert.Equal(t, "image/jpeg", rec.MediaType)

	stored, err := env.repo.GetByName(ctx, rec.Name)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", stored.MediaType)
}

func TestUpload_TransformFailureTouchesNoStore(t *testing.T) {
	env := newEnv(t)

	_, err := env.svc.Upload(context.Background(), pngDescriptor(), transform.Options{Width: 100})
	require.ErrorIs(t, err, common.ErrorTransform)

	assert.Empty(t, env.store.blobs)
	assert.Zero(t, env.repo.createCalls)
}

func TestUpload_BlobWriteFailureIsTerminal(t *testing.T) {
	env := newEnv(t)
	env.store.saveErr = common.ErrorStorageWrite

	_, err := env.svc.Upload(context.Background(), pngDescriptor(), transform.Options{})
	require.ErrorIs(t, err, common.ErrorStorageWrite)

	assert.Zero(t, env.repo.createCalls, "metadata must not be touched after a blob write failure")
	assert.Empty(t, env.queue.entries)
}

func TestUpload_MetadataFailureCompensatesBlob(t *testing.T) {
	env := newEnv(t)
	dbErr := errors.New("insert failed")
	env.repo.createErr = dbErr

	_, err := env.svc.Upload(context.Background(), pngDescriptor(), transform.Options{})
	require.ErrorIs(t, err, dbErr, "the original database error is surfaced")

	assert.Empty(t, env.store.blobs, "compensation must remove the written blob")
	assert.Empty(t, env.queue.entries, "successful compensation needs no queue entry")
}

func TestUpload_FailedCompensationEnqueues(t *testing.T) {
	env := newEnv(t)
	dbErr := errors.New("insert failed")
	env.repo.createErr = dbErr
	env.store.deleteErr = errors.New("unlink failed")

	_, err := env.svc.Upload(context.Background(), pngDescriptor(), transform.Options{})
	require.ErrorIs(t, err, dbErr)

	assert.Len(t, env.store.blobs, 1, "blob is orphaned")
	assert.Len(t, env.queue.entries, 1, "orphan must be recorded in the queue")
	for name := range env.queue.entries {
		assert.Contains(t, env.store.blobs, name)
	}
}

func TestUpload_ConflictSurfacesAndCompensates(t *testing.T) {
	env := newEnv(t)
	env.repo.createErr = common.ErrorConflict

	_, err := env.svc.Upload(context.Background(), pngDescriptor(), transform.Options{})
	require.ErrorIs(t, err, common.ErrorConflict)
	assert.Empty(t, env.store.blobs)
}

func TestUpload_EnqueueFailureIsNotEscalated(t *testing.T) {
	env := newEnv(t)
	dbErr := errors.New("insert failed")
	env.repo.createErr = dbErr
	env.store.deleteErr = errors.New("unlink failed")
	env.queue.enqueueErr = errors.New("queue down")

	_, err := env.svc.Upload(context.Background(), pngDescriptor(), transform.Options{})
	require.ErrorIs(t, err, dbErr, "even a failed enqueue surfaces the original error")
}

// -------- delete protocol --------

func uploadOne(t *testing.T, env *testEnv) *models.FileRecord {
	t.Helper()
	rec, err := env.svc.Upload(context.Background(), pngDescriptor(), transform.Options{})
	require.NoError(t, err)
	return rec
}

func TestDelete_Success(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)

	got, err := env.svc.Delete(ctx, rec.Name)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", got.DisplayName)

	_, err = env.repo.GetByName(ctx, rec.Name)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	ok, _ := env.store.Exists(ctx, rec.Name)
	assert.False(t, ok)
}

func TestDelete_NotFound(t *testing.T) {
	env := newEnv(t)
	_, err := env.svc.Delete(context.Background(), "2025/01/01/unknown.png")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete_IdempotentWhenBlobAlreadyAbsent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)

	// blob vanishes out-of-band, metadata still present
	require.NoError(t, env.store.Delete(ctx, rec.Name))

	got, err := env.svc.Delete(ctx, rec.Name)
	require.NoError(t, err, "missing blob must not fail the delete")
	assert.Equal(t, rec.Name, got.Name)
	_, err = env.repo.GetByName(ctx, rec.Name)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete_MetadataFailureAborts(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)
	env.repo.deleteErr = errors.New("db down")

	_, err := env.svc.Delete(ctx, rec.Name)
	require.Error(t, err)

	// no state change
	ok, _ := env.store.Exists(ctx, rec.Name)
	assert.True(t, ok)
}

func TestDelete_BlobFailureRestoresMetadata(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)

	blobErr := errors.New("permission denied")
	env.store.deleteErr = blobErr

	_, err := env.svc.Delete(ctx, rec.Name)
	require.ErrorIs(t, err, blobErr, "the original blob-deletion error is surfaced")

	// both stores still agree: file fully present
	restored, err := env.repo.GetByName(ctx, rec.Name)
	require.NoError(t, err)
	assert.True(t, restored.CreatedAt.Equal(rec.CreatedAt), "re-insert restores the original timestamp")
	ok, _ := env.store.Exists(ctx, rec.Name)
	assert.True(t, ok)
	assert.Empty(t, env.queue.entries)
}

func TestDelete_FailedReinsertIsCritical(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)

	env.store.deleteErr = errors.New("permission denied")
	env.repo.createErr = errors.New("db gone")

	_, err := env.svc.Delete(ctx, rec.Name)
	require.ErrorIs(t, err, common.ErrorCriticalInconsistency)

	var critical *common.CriticalInconsistencyError
	require.ErrorAs(t, err, &critical)
	assert.Equal(t, rec.Name, critical.Name)

	assert.Contains(t, env.queue.entries, rec.Name, "critical failures always enqueue")
}

// -------- rename --------

func TestRename_UpdatesDisplayNameInTx(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	got, err := env.svc.Rename(ctx, rec.Name, "holiday.png")
	require.NoError(t, err)
	assert.Equal(t, "holiday.png", got.DisplayName)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRename_NotFound(t *testing.T) {
	env := newEnv(t)

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	_, err := env.svc.Rename(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// -------- download --------

func TestDownload_ReturnsRecordAndBytes(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)

	got, data, err := env.svc.Download(ctx, rec.Name)
	require.NoError(t, err)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, pngDescriptor().Data, data)
}

func TestDownload_NotFound(t *testing.T) {
	env := newEnv(t)

	_, _, err := env.svc.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDownload_MissingBlobIsReadFailureNotAbsence(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	rec := uploadOne(t, env)

	delete(env.store.blobs, rec.Name)

	_, _, err := env.svc.Download(ctx, rec.Name)
	assert.ErrorIs(t, err, common.ErrorStorageRead)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

// -------- name generation --------

func TestGenerateName_ShapeAndUniqueness(t *testing.T) {
	a := GenerateName(".png")
	b := GenerateName(".png")

	assert.NotEqual(t, a, b)
	now := time.Now()
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2}/[0-9a-f-]{36}\.png$`, a)
	assert.Contains(t, a, now.Format("2006/01/02"))
}
