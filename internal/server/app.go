// Package server initializes and runs the main application server.
// It opens the database, runs migrations, configures the storage backend,
// starts the HTTP server and the background reconciliation loop, and
// handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dkrasnovs/filedepot/internal/logging"
	"github.com/dkrasnovs/filedepot/internal/server/blobstore"
	"github.com/dkrasnovs/filedepot/internal/server/config"
	"github.com/dkrasnovs/filedepot/internal/server/httpapi"
	"github.com/dkrasnovs/filedepot/internal/server/repositories/repomanager"
	"github.com/dkrasnovs/filedepot/internal/server/services"
	"github.com/dkrasnovs/filedepot/internal/transform"
	"github.com/dkrasnovs/filedepot/internal/verify"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	fileService *services.FileService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	fs := services.NewFileService(db, rm, blobs, transform.NewImage(transform.DefaultLimits()), logger)

	return &App{config: c, logger: logger, db: db, fileService: fs}, nil
}

// openDB opens the pgx pool and waits for the database to accept
// connections. The database container often comes up after the app.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(1*time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.StorageBackend {
	case "s3":
		return blobstore.NewS3(ctx, blobstore.S3Config{
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			BasePath:     c.PublicBasePath,
		})
	case "local":
		return blobstore.NewLocal(c.StorageDir, c.PublicBasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", c.StorageBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	verifyCfg := verify.DefaultConfig()
	verifyCfg.MaxBytes = app.config.MaxUploadBytes

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.fileService,
		verifyCfg, app.config.CleanupBatchSize, app.config.QueueRetention)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runReconciler drains the cleanup queue on a fixed interval. The first
// pass runs immediately so a restart converges without waiting a tick.
func (app *App) runReconciler(ctx context.Context) {
	pass := func() {
		if _, err := app.fileService.ProcessCleanupQueue(ctx, app.config.CleanupBatchSize); err != nil {
			app.logger.Error(ctx, "cleanup queue pass failed", "error", err.Error())
		}
		if _, err := app.fileService.ArchiveResolved(ctx, app.config.QueueRetention); err != nil {
			app.logger.Error(ctx, "cleanup queue archival failed", "error", err.Error())
		}
	}

	pass()

	ticker := time.NewTicker(app.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runReconciler(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
