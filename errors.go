package redisinmem

import (
	"errors"
	"fmt"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSnapshotLoad indicates the startup snapshot could not be loaded
	ErrSnapshotLoad = errors.New("snapshot load failed")

	// ErrClosed indicates the instance has been closed
	ErrClosed = errors.New("instance is closed")
)

// StartupError reports which startup phase failed
type StartupError struct {
	Phase string // "snapshot", "listen"
	Err   error
}

// Error implements the error interface
func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed in phase %s: %v", e.Phase, e.Err)
}

// Unwrap returns the wrapped error
func (e *StartupError) Unwrap() error {
	return e.Err
}
