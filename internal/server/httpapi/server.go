// Package httpapi is the HTTP intake layer: it parses multipart uploads,
// runs the trust pipeline and maps service errors to status codes. No
// coordination logic lives here.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkrasnovs/filedepot/internal/logging"
	"github.com/dkrasnovs/filedepot/internal/server/models"
	"github.com/dkrasnovs/filedepot/internal/transform"
	"github.com/dkrasnovs/filedepot/internal/verify"
)

// FileOps is the slice of the file service used by the handlers.
// *services.FileService satisfies it.
type FileOps interface {
	Upload(ctx context.Context, d *verify.Descriptor, opts transform.Options) (*models.FileRecord, error)
	Download(ctx context.Context, name string) (*models.FileRecord, []byte, error)
	Delete(ctx context.Context, name string) (*models.FileRecord, error)
	Rename(ctx context.Context, name, displayName string) (*models.FileRecord, error)
	List(ctx context.Context, limit, offset int) ([]*models.FileRecord, error)
	Stats(ctx context.Context) (*models.FileStats, error)
	ProcessCleanupQueue(ctx context.Context, batch int) (int, error)
	ArchiveResolved(ctx context.Context, retention time.Duration) (int64, error)
	URL(name string) string
}

type Server struct {
	address string
	logger  logging.Logger
	files   FileOps

	verifyCfg verify.Config
	// cleanupBatch is the batch size used by the admin cleanup endpoint.
	cleanupBatch int
	// queueRetention is how long resolved queue entries are kept.
	queueRetention time.Duration
}

func NewServer(address string, l logging.Logger, fs FileOps,
	verifyCfg verify.Config, cleanupBatch int, queueRetention time.Duration) *Server {
	return &Server{
		address:        address,
		logger:         l.With("module", "http_server"),
		files:          fs,
		verifyCfg:      verifyCfg,
		cleanupBatch:   cleanupBatch,
		queueRetention: queueRetention,
	}
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/files", s.handleUpload)
		api.GET("/files", s.handleList)
		api.GET("/files/stats", s.handleStats)
		api.GET("/files/download/*name", s.handleDownload)
		api.PATCH("/files/*name", s.handleRename)
		api.DELETE("/files/*name", s.handleDelete)
		api.POST("/admin/cleanup", s.handleCleanup)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
