// Package blobstore provides durable byte storage keyed by the generated
// file name. Backends must be safe for concurrent use across independent
// names.
package blobstore

import "context"

// Store is the content-store contract used by the file service.
//
// Delete of an absent name returns common.ErrorNotFound; the caller
// decides whether absence is an error (for the delete protocol it is not).
type Store interface {
	// Save writes data under name, creating any intermediate structure.
	Save(ctx context.Context, name string, data []byte) error
	// Load returns the bytes stored under name.
	Load(ctx context.Context, name string) ([]byte, error)
	// Delete removes the bytes stored under name.
	Delete(ctx context.Context, name string) error
	// Exists reports whether bytes are stored under name.
	Exists(ctx context.Context, name string) (bool, error)
	// Path maps name to the store-internal location (root-joined for
	// local disk, bucket-joined for S3). Pure and deterministic; this is
	// what metadata persists.
	Path(name string) string
	// URL maps name to the externally reachable relative path. Pure and
	// deterministic; used only for response construction.
	URL(name string) string
}
