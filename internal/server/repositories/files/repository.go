package files

import (
	"context"

	"github.com/dkrasnovs/filedepot/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.FileRecord) error
	GetByName(ctx context.Context, name string) (*models.FileRecord, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, limit, offset int) ([]*models.FileRecord, error)
	UpdateDisplayName(ctx context.Context, name, displayName string) error
	Stats(ctx context.Context) (*models.FileStats, error)
}
