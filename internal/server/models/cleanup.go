package models

import "time"

// CleanupEntry marks a file name whose two-store state is suspected
// inconsistent. While Resolved is false, neither store's claim about the
// name can be trusted without re-checking both.
type CleanupEntry struct {
	Name     string
	FailedAt time.Time
	Resolved bool
}
