package browser

import "errors"

var (
	// ErrClosed is returned by drivers when the page, context or browser has
	// been torn down.
	ErrClosed = errors.New("page or context has been closed")
	// ErrNotSupported is returned for an operation a driver cannot perform.
	ErrNotSupported = errors.New("operation not supported by driver")
)
