package lavender

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("lavender: invalid label")
	ErrConflict    = errors.New("lavender: conflicting label")
	ErrCorrupt     = errors.New("lavender: corrupt file")
	ErrLockTimeout = errors.New("lavender: lock timeout")
	ErrNotFound    = errors.New("lavender: not found")
)

// ConflictError reports two different values claimed for the same original path.
type ConflictError struct {
	OriginalPath string
	Existing     string
	Incoming     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lavender: conflicting values for %s: %s vs %s", e.OriginalPath, e.Existing, e.Incoming)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
