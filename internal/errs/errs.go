// Package errs defines the download engine's error taxonomy. These are
// kinds, not concrete types: every function still returns a plain error
// built with fmt.Errorf("...: %w", ...), wrapping one of the sentinels
// below so callers can classify with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrParsing covers malformed manifests or unparseable duration/datetime
	// values. Errors of this kind should carry a manifest path via WithPath.
	ErrParsing = errors.New("parsing error")

	// ErrUnhandledMediaStream means no Representation matched the selection
	// constraints for some required track.
	ErrUnhandledMediaStream = errors.New("no representation matches selection constraints")

	// ErrNetwork is a generic transport error.
	ErrNetwork = errors.New("network error")

	// ErrNetworkTimeout specialises ErrNetwork for read/connect timeouts;
	// retryable.
	ErrNetworkTimeout = errors.New("network timeout")

	// ErrNetworkConnect specialises ErrNetwork for connection and TLS
	// failures; always permanent, never retried.
	ErrNetworkConnect = errors.New("network connect error")

	// ErrIO covers temp file write/rename failures.
	ErrIO = errors.New("io error")

	// ErrDecrypt means the decryption helper failed or the keys didn't match.
	ErrDecrypt = errors.New("decryption failed")

	// ErrMuxing means every muxer in the preference list failed.
	ErrMuxing = errors.New("muxing failed")

	// ErrConformity marks a conformance-check failure. Non-fatal unless the
	// caller opted into strict conformity checks.
	ErrConformity = errors.New("conformance check failed")
)

// HTTPStatusError wraps a non-2xx response outside the retryable set.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.StatusCode, e.URL)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrNetwork
}

// PathError annotates ErrParsing with a JSON-like path into the manifest,
// e.g. "Period[0].AdaptationSet[1].Representation[0].SegmentTemplate".
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }

// WithPath wraps err (normally ErrParsing) with a diagnostic manifest path.
func WithPath(path string, err error) error {
	return &PathError{Path: path, Err: err}
}
