// Package common defines shared sentinel errors used across filedepot
// components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Verification pipeline errors.
	ErrorFileTooLarge        = errors.New("file too large")
	ErrorNoExtension         = errors.New("file has no extension")
	ErrorExtensionNotAllowed = errors.New("extension not allowed")

	// ErrorNotTrusted covers both the cross-validation and the signature
	// gates. The message is deliberately generic: a probing client must
	// not learn which of the two checks rejected the payload.
	ErrorNotTrusted = errors.New("file type is not trusted")

	// Transform / storage errors.
	ErrorTransform    = errors.New("file could not be processed")
	ErrorStorageWrite = errors.New("storage write failed")
	ErrorStorageRead  = errors.New("storage read failed")

	// ErrorCriticalInconsistency marks a failed compensating action: the
	// two stores disagree and the divergence has been handed to the
	// cleanup queue.
	ErrorCriticalInconsistency = errors.New("critical store inconsistency")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
)

// CriticalInconsistencyError carries the file name whose two-store state is
// unknown, the error that triggered compensation and the error the
// compensating action itself failed with. It unwraps to
// ErrorCriticalInconsistency so callers can match it with errors.Is.
type CriticalInconsistencyError struct {
	Name         string
	Cause        error
	Compensation error
}

func (e *CriticalInconsistencyError) Error() string {
	return fmt.Sprintf("critical store inconsistency for %q: %v (compensation: %v)", e.Name, e.Cause, e.Compensation)
}

func (e *CriticalInconsistencyError) Unwrap() error {
	return ErrorCriticalInconsistency
}
