// Package models defines server-side data models persisted in the database.
package models

import "time"

// FileRecord describes one stored file. At steady state a row exists if
// and only if the blob store holds bytes under the same Name.
type FileRecord struct {
	// Name is the system-generated unique key joining both stores.
	Name string
	// DisplayName is the original client-supplied name, untrusted,
	// stored only for display.
	DisplayName string
	// StoragePath is the blob location derived deterministically from Name.
	StoragePath string
	// MediaType is the verified media type.
	MediaType string
	// ByteSize is the stored payload length.
	ByteSize int64
	// CreatedAt is set by the database on insert.
	CreatedAt time.Time
}

// FileStats aggregates the metadata table.
type FileStats struct {
	TotalFiles int64       `json:"total_files"`
	TotalBytes int64       `json:"total_bytes"`
	ByType     []TypeCount `json:"by_type"`
}

// TypeCount is one per-media-type aggregate row.
type TypeCount struct {
	MediaType string `json:"media_type"`
	Count     int64  `json:"count"`
	Bytes     int64  `json:"bytes"`
}
