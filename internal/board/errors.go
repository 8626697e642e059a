package board

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates the stable wire-level failure codes.
type ErrorCode string

const (
	// CodeBadRequest marks malformed frames, unknown actions and invalid fields.
	CodeBadRequest ErrorCode = "BAD_REQUEST"
	// CodeForbidden marks callers lacking the required role.
	CodeForbidden ErrorCode = "FORBIDDEN"
	// CodeNotFound marks references to missing lists, items or bulletins.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeRateLimited marks frames rejected by the per-connection token bucket.
	CodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Error carries a stable wire code alongside a human-readable message.
type Error struct {
	code    ErrorCode
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the stable wire code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Message returns the human-readable description.
func (e *Error) Message() string {
	return e.message
}

// BadRequestf builds a BAD_REQUEST error.
func BadRequestf(format string, args ...interface{}) *Error {
	return &Error{code: CodeBadRequest, message: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a FORBIDDEN error.
func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{code: CodeForbidden, message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NOT_FOUND error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{code: CodeNotFound, message: fmt.Sprintf(format, args...)}
}

// WrapBadRequest attaches a cause to a BAD_REQUEST error.
func WrapBadRequest(message string, cause error) *Error {
	return &Error{code: CodeBadRequest, message: message, cause: cause}
}

// CodeOf extracts the wire code from an error, defaulting to BAD_REQUEST.
func CodeOf(err error) (ErrorCode, string) {
	var boardErr *Error
	if errors.As(err, &boardErr) {
		return boardErr.Code(), boardErr.Message()
	}
	return CodeBadRequest, err.Error()
}
