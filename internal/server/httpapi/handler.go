package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkrasnovs/filedepot/internal/common"
	"github.com/dkrasnovs/filedepot/internal/server/models"
	"github.com/dkrasnovs/filedepot/internal/transform"
	"github.com/dkrasnovs/filedepot/internal/verify"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type fileResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	MediaType   string `json:"media_type"`
	ByteSize    int64  `json:"byte_size"`
	URL         string `json:"url"`
}

func (s *Server) toFileResponse(r *models.FileRecord) fileResponse {
	return fileResponse{
		Name:        r.Name,
		DisplayName: r.DisplayName,
		MediaType:   r.MediaType,
		ByteSize:    r.ByteSize,
		URL:         s.files.URL(r.Name),
	}
}

type deleteResponse struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	DeletedAt   time.Time `json:"deleted_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the service error taxonomy to HTTP statuses. Client
// errors carry the sentinel's message; server-side and critical errors
// return a generic body, detail stays in the logs.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorFileTooLarge),
		errors.Is(err, common.ErrorNoExtension),
		errors.Is(err, common.ErrorExtensionNotAllowed),
		errors.Is(err, common.ErrorNotTrusted):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})

	case errors.Is(err, common.ErrorTransform):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})

	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "file not found"})

	case errors.Is(err, common.ErrorConflict):
		c.JSON(http.StatusConflict, errorResponse{Error: "name conflict, retry the upload"})

	case errors.Is(err, common.ErrorCriticalInconsistency):
		s.logger.Error(c.Request.Context(), "critical inconsistency surfaced", "error", err.Error())
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})

	default:
		s.logger.Error(c.Request.Context(), "request failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}

	f, err := header.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.verifyCfg.MaxBytes+1))
	if err != nil {
		s.writeError(c, err)
		return
	}

	descriptor, err := verify.Verify(s.verifyCfg, header.Filename, header.Size, data)
	if err != nil {
		s.writeError(c, err)
		return
	}

	opts, err := transformOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	record, err := s.files.Upload(c.Request.Context(), descriptor, opts)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.toFileResponse(record))
}

// transformOptions reads the optional transform form values. Bounds are
// enforced by the transformer, not here.
func transformOptions(c *gin.Context) (transform.Options, error) {
	var opts transform.Options
	opts.Format = c.PostForm("format")

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"width", &opts.Width},
		{"height", &opts.Height},
		{"quality", &opts.Quality},
	} {
		v := c.PostForm(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return transform.Options{}, errors.New("form field '" + f.key + "' must be a non-negative integer")
		}
		*f.dst = n
	}

	return opts, nil
}

// nameParam extracts the file name from a wildcard route parameter.
func nameParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}

func (s *Server) handleDownload(c *gin.Context) {
	record, data, err := s.files.Download(c.Request.Context(), nameParam(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.DisplayName))
	c.Data(http.StatusOK, record.MediaType, data)
}

func (s *Server) handleDelete(c *gin.Context) {
	record, err := s.files.Delete(c.Request.Context(), nameParam(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, deleteResponse{
		Name:        record.Name,
		DisplayName: record.DisplayName,
		DeletedAt:   time.Now().UTC(),
	})
}

type renameRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

func (s *Server) handleRename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "display_name is required"})
		return
	}

	record, err := s.files.Rename(c.Request.Context(), nameParam(c), req.DisplayName)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.toFileResponse(record))
}

func (s *Server) handleList(c *gin.Context) {
	limit := intQuery(c, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, err := s.files.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]fileResponse, 0, len(records))
	for _, r := range records {
		out = append(out, s.toFileResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"files": out, "limit": limit, "offset": offset})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.files.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCleanup(c *gin.Context) {
	processed, err := s.files.ProcessCleanupQueue(c.Request.Context(), s.cleanupBatch)
	if err != nil {
		s.writeError(c, err)
		return
	}

	archived, err := s.files.ArchiveResolved(c.Request.Context(), s.queueRetention)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"processed": processed, "archived": archived})
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
