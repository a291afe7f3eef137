package render

import "errors"

// Sentinel errors for runtime management.
var (
	// ErrClosed is returned when posting work to a closed executor.
	ErrClosed = errors.New("render: executor closed")

	// ErrRuntimeExists is returned when registering a runtime id twice.
	ErrRuntimeExists = errors.New("render: runtime already registered")
)
