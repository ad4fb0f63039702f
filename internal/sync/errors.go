// Package sync implements the activity synchronization engine: window
// computation, the ingestion pipeline, and the orchestrated top-level
// operations with their sync-log bookkeeping.
package sync

import (
	"errors"
	"fmt"

	"stridelog-strava-sync/internal/strava"
)

// Code classifies a sync failure so the API layer can map it to a stable
// status without inspecting error internals.
type Code int

const (
	CodeInvalidDateRange Code = iota
	CodeNotConnected
	CodeNoPreviousSync
	CodeUpstreamAuth
	CodeUpstream
	CodeInternal
)

// Error is the typed failure returned by every orchestrator operation
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Precondition errors are terminal, user-correctable, and never recorded
// as sync attempts.
var (
	ErrNotConnected   = &Error{Code: CodeNotConnected, Message: "no connected athlete for this user"}
	ErrNoPreviousSync = &Error{Code: CodeNoPreviousSync, Message: "no previous successful sync to anchor the incremental window"}
)

// StatusCode maps any error to its stable HTTP status
func StatusCode(err error) int {
	var syncErr *Error
	if !errors.As(err, &syncErr) {
		return 500
	}
	switch syncErr.Code {
	case CodeInvalidDateRange:
		return 400
	case CodeNotConnected:
		return 404
	case CodeNoPreviousSync:
		return 409
	case CodeUpstreamAuth:
		return 401
	case CodeUpstream:
		return 502
	default:
		return 500
	}
}

// wrapUpstream classifies a gateway failure: auth errors keep their own
// class, everything else (non-2xx, network failure, payload shape
// mismatch) is a generic upstream failure.
func wrapUpstream(message string, err error) *Error {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr
	}
	code := CodeUpstream
	if strava.IsAuthError(err) {
		code = CodeUpstreamAuth
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// wrapInternal classifies a persistence or invariant failure
func wrapInternal(message string, err error) *Error {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr
	}
	return &Error{Code: CodeInternal, Message: message, Cause: err}
}
