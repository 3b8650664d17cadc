package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrNotFound           = errors.New("file not found")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrBackend            = errors.New("playback backend failure")
	ErrInvalidState       = errors.New("operation not valid in current playback state")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrEmptyCollection    = errors.New("collection has no tracks")
	ErrUnknownFormat      = errors.New("unknown export format")
	ErrDescriptorCorrupt  = errors.New("descriptor file is corrupt")
	ErrPersistence        = errors.New("descriptor write failed")
)

// PlayerError wraps playback errors with additional context
type PlayerError struct {
	Op    string // Operation that failed
	Track string // Track path if applicable
	Err   error  // Underlying error
}

func (e *PlayerError) Error() string {
	if e.Track != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Track, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError
func NewPlayerError(op, track string, err error) *PlayerError {
	return &PlayerError{Op: op, Track: track, Err: err}
}

// StoreError represents an error in a catalog or descriptor operation
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("%s failed for collection %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError
func NewStoreError(op, collection string, err error) *StoreError {
	return &StoreError{Op: op, Collection: collection, Err: err}
}
