package uploadmodel

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy (§7). Handlers should check
// for these with errors.Is and map them to caller-facing responses.
var (
	// ErrNotFound indicates no such session exists.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidState indicates the requested operation is not legal from the
	// session's current status.
	ErrInvalidState = errors.New("invalid session state for operation")

	// ErrInvalidInput indicates the local file is missing/unreadable or the
	// supplied endpoints are malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransport indicates a network/timeout/DNS/connection-reset failure.
	// Recoverable.
	ErrTransport = errors.New("transport error")

	// ErrHTTPServer indicates a 5xx, 408, or 429 response. Recoverable.
	ErrHTTPServer = errors.New("backend server error")

	// ErrHTTPClient indicates a 4xx response other than 408/429.
	// Non-recoverable.
	ErrHTTPClient = errors.New("backend client error")

	// ErrProtocol indicates a malformed or incomplete backend response.
	// Non-recoverable.
	ErrProtocol = errors.New("backend protocol error")

	// ErrInternal indicates a store or filesystem failure. Non-recoverable
	// for the current attempt, but the session remains resumable.
	ErrInternal = errors.New("internal error")

	// ErrCancelled indicates cooperative cancellation was observed.
	ErrCancelled = errors.New("cancelled")
)

// Recoverable reports whether a sentinel error from this taxonomy represents
// a condition the Retry Policy is permitted to retry (§7).
func Recoverable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrHTTPServer)
}

// EngineError wraps a taxonomy sentinel with structured operational context,
// in the manner of this codebase's wrapped-sentinel-plus-context error
// convention. errors.Is/errors.As match through to Err.
type EngineError struct {
	// Op describes the operation that failed: "initiate", "presign",
	// "put_part", "complete", "abort", "claim_part", "store".
	Op string

	// SessionID is the affected session, if known.
	SessionID string

	// PartNumber is the affected part, 0 if not part-scoped.
	PartNumber int

	// Retries is the number of attempts made before this failure.
	Retries int

	// HTTPStatus is the backend HTTP status code, 0 if not applicable.
	HTTPStatus int

	// Err is the wrapped taxonomy sentinel.
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.PartNumber > 0 {
		return fmt.Sprintf("upload %s: %s (session=%s, part=%d, retries=%d)",
			e.Op, e.Err, e.SessionID, e.PartNumber, e.Retries)
	}
	return fmt.Sprintf("upload %s: %s (session=%s)", e.Op, e.Err, e.SessionID)
}

// Unwrap returns the wrapped sentinel error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether this error is a candidate for retry.
func (e *EngineError) Recoverable() bool {
	return Recoverable(e.Err)
}

// NewEngineError wraps a sentinel error with session/part context.
func NewEngineError(op, sessionID string, partNumber int, err error) *EngineError {
	return &EngineError{Op: op, SessionID: sessionID, PartNumber: partNumber, Err: err}
}
