package repomanager

import (
	"context"
	"database/sql"

	"github.com/dkrasnovs/filedepot/internal/dbx"
	"github.com/dkrasnovs/filedepot/internal/server/repositories/cleanupqueue"
	"github.com/dkrasnovs/filedepot/internal/server/repositories/files"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	CleanupQueue(db dbx.DBTX) cleanupqueue.Repository
}
