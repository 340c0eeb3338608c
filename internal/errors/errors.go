package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an adsift error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrInvalidSource  ErrorCode = "INVALID_SOURCE"  // 400
	ErrNoSources      ErrorCode = "NO_SOURCES"      // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrBadPayload     ErrorCode = "BAD_PAYLOAD"     // 422
	ErrFetchFailed    ErrorCode = "FETCH_FAILED"    // 502
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// SiftError represents a structured error with code, status, and details.
type SiftError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *SiftError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SiftError {
	return &SiftError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidSource creates a 400 error for a list location that is not an http(s) URL.
func NewInvalidSource(source string) *SiftError {
	return &SiftError{
		Code:    ErrInvalidSource,
		Status:  400,
		Message: fmt.Sprintf("not an absolute http(s) URL: %q", source),
		Details: map[string]any{"source": source},
	}
}

// NewNoSources creates a 400 error when no usable list location was configured.
func NewNoSources() *SiftError {
	return &SiftError{
		Code:    ErrNoSources,
		Status:  400,
		Message: "no valid blacklist sources configured",
	}
}

// NewNotFound creates a 404 error for when a fetch run cannot be found.
func NewNotFound(identifier string) *SiftError {
	return &SiftError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("fetch run not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewBadPayload creates a 422 error when a list body is not a JSON array.
func NewBadPayload(source, reason string) *SiftError {
	return &SiftError{
		Code:    ErrBadPayload,
		Status:  422,
		Message: fmt.Sprintf("unusable list payload from %s: %s", source, reason),
		Details: map[string]any{"source": source, "reason": reason},
	}
}

// NewFetchFailed creates a 502 error for transport failures and non-2xx responses.
func NewFetchFailed(source string, err error) *SiftError {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	return &SiftError{
		Code:    ErrFetchFailed,
		Status:  502,
		Message: fmt.Sprintf("fetch %s: %s", source, msg),
		Details: map[string]any{"source": source},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *SiftError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &SiftError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or any error it wraps) is a SiftError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SiftError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}
