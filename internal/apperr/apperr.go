// Package apperr defines the error kinds shared by the data store, archive and
// service layers. Callers wrap a kind with context using fmt.Errorf("...: %w")
// and classify with errors.Is. Any error that matches none of these kinds is an
// I/O failure.
package apperr

import "errors"

var (
	// ErrInvalidInput reports a missing or empty required field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidPath reports a path that fails structural or containment validation.
	ErrInvalidPath = errors.New("invalid file path")
	// ErrNotFound reports a resolved path that does not name an existing file.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidArchive reports an unreadable archive or one without a valid data.json.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrSizeExceeded reports a payload larger than its configured ceiling.
	ErrSizeExceeded = errors.New("size limit exceeded")
	// ErrUpstreamUnavailable reports a failed external integration (registry bridge, remote backup).
	ErrUpstreamUnavailable = errors.New("upstream integration unavailable")
	// ErrDebugDisabled reports use of the debug surface outside the local runtime.
	ErrDebugDisabled = errors.New("debug API is only available in local runtime")
)

// Code returns the machine-readable error code for err, as used in HTTP error payloads.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrInvalidPath):
		return "INVALID_PATH"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidArchive):
		return "INVALID_ARCHIVE"
	case errors.Is(err, ErrSizeExceeded):
		return "SIZE_EXCEEDED"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, ErrDebugDisabled):
		return "FORBIDDEN"
	default:
		return "IO_FAILURE"
	}
}
