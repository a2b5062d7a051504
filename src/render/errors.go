package render

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned when a render ran to completion but a newer
// render for the same instance finished or started first. The result was
// discarded; nothing was applied or cached.
var ErrSuperseded = errors.New("render superseded by a newer request")

// ErrNotReady is returned when an operation requires the Ready state.
var ErrNotReady = errors.New("renderer is not ready")

// ErrDisposed is returned for operations on a disposed renderer.
var ErrDisposed = errors.New("renderer is disposed")

// BackendError wraps a rendering backend failure. Backend failures during
// initialization or layer application are fatal to the renderer instance:
// the instance must be disposed and re-initialized, not retried in place.
type BackendError struct {
	Op    string
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("render backend %s: %v", e.Op, e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}
