// Package errors defines the structured error taxonomy for conversation
// turns. Components return these instead of throwing opaque failures across
// boundaries; the orchestrator decides per code whether to recover into a
// degraded reply or propagate to the caller.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a turn-level failure.
type ErrorCode string

const (
	// ErrCodeEmptyQuery indicates the turn carried no usable user text.
	// Caller error, not retryable.
	ErrCodeEmptyQuery ErrorCode = "EMPTY_QUERY"
	// ErrCodeRetrievalUnavailable indicates embedding or catalog index
	// failure. Transient; the orchestrator degrades the reply.
	ErrCodeRetrievalUnavailable ErrorCode = "RETRIEVAL_UNAVAILABLE"
	// ErrCodeGenerationUnavailable indicates the generation call failed or
	// timed out. Transient; the orchestrator degrades the reply.
	ErrCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"
	// ErrCodeMalformedGeneration indicates the model output did not satisfy
	// the generation contract. Always recovered internally, never surfaced.
	ErrCodeMalformedGeneration ErrorCode = "MALFORMED_GENERATION"
	// ErrCodePersistenceUnavailable indicates the session store failed. The
	// one class that must propagate: silently losing a write would violate
	// the durability contract of a chat history.
	ErrCodePersistenceUnavailable ErrorCode = "PERSISTENCE_UNAVAILABLE"
	// ErrCodeNotFound indicates a referenced session does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// TurnError is a structured error for conversation turn operations.
type TurnError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may retry the turn as-is.
func (e *TurnError) Retryable() bool {
	switch e.Code {
	case ErrCodeRetrievalUnavailable, ErrCodeGenerationUnavailable, ErrCodePersistenceUnavailable:
		return true
	default:
		return false
	}
}

// Convenience constructors.

// EmptyQuery creates an empty query error.
func EmptyQuery(msg string) *TurnError {
	return &TurnError{Code: ErrCodeEmptyQuery, Message: msg}
}

// RetrievalUnavailable creates a retrieval unavailable error.
func RetrievalUnavailable(msg string, cause error) *TurnError {
	return &TurnError{Code: ErrCodeRetrievalUnavailable, Message: msg, Cause: cause}
}

// GenerationUnavailable creates a generation unavailable error.
func GenerationUnavailable(msg string, cause error) *TurnError {
	return &TurnError{Code: ErrCodeGenerationUnavailable, Message: msg, Cause: cause}
}

// MalformedGeneration creates a malformed generation error.
func MalformedGeneration(msg string, cause error) *TurnError {
	return &TurnError{Code: ErrCodeMalformedGeneration, Message: msg, Cause: cause}
}

// PersistenceUnavailable creates a persistence unavailable error.
func PersistenceUnavailable(msg string, cause error) *TurnError {
	return &TurnError{Code: ErrCodePersistenceUnavailable, Message: msg, Cause: cause}
}

// NotFound creates a not found error.
func NotFound(msg string) *TurnError {
	return &TurnError{Code: ErrCodeNotFound, Message: msg}
}

// IsCode checks if an error carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr.Code == code
	}
	return false
}

// CodeOf extracts the error code from any error, falling back to
// defaultCode when the error is not a TurnError.
func CodeOf(err error, defaultCode ErrorCode) ErrorCode {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr.Code
	}
	return defaultCode
}
