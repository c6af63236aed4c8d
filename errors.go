package kv_capacity

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("store closed")

	// ErrCorruptRecord marks a truncated or malformed piece record. It is
	// never returned for a clean end of the log.
	ErrCorruptRecord = errors.New("corrupt piece record")

	// ErrInvalidPieceSize is returned when the configured piece size is not positive.
	ErrInvalidPieceSize = errors.New("piece size must be positive")
)

// ConstructionError indicates the backing spill file could not be created
// or opened. The instance that produced it is unusable.
//
// The original underlying error can be accessed via errors.Unwrap.
type ConstructionError struct {
	Path  string
	cause error
}

func NewConstructionError(path string, cause error) *ConstructionError {
	return &ConstructionError{Path: path, cause: cause}
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("failed to create spill file %q: %v", e.Path, e.cause)
}

func (e *ConstructionError) Unwrap() error { return e.cause }

// WriteError indicates a piece could not be persisted. The store is
// unusable afterwards and reports the same error for every later write.
//
// The original underlying error can be accessed via errors.Unwrap.
type WriteError struct {
	Seq   uint64
	cause error
}

func NewWriteError(seq uint64, cause error) *WriteError {
	return &WriteError{Seq: seq, cause: cause}
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write piece %d: %v", e.Seq, e.cause)
}

func (e *WriteError) Unwrap() error { return e.cause }
