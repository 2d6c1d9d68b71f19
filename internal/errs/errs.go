// Package errs carries a small set of error codes across the service layers
// so that HTTP and MCP handlers can pick a status and a safe message without
// knowing where an error came from.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for transport mapping.
type Code string

const (
	InvalidArgument Code = "invalid_argument"
	Unauthenticated Code = "unauthenticated"
	NotFound        Code = "not_found"
	AlreadyExists   Code = "already_exists"
	RateLimited     Code = "rate_limited"
	Upstream        Code = "upstream" // AI provider or object store
	Internal        Code = "internal"
)

var statusByCode = map[Code]int{
	InvalidArgument: http.StatusBadRequest,
	Unauthenticated: http.StatusUnauthorized,
	NotFound:        http.StatusNotFound,
	AlreadyExists:   http.StatusConflict,
	RateLimited:     http.StatusTooManyRequests,
}

// Error pairs a code and a client-safe message with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to cause. The cause stays reachable through
// errors.Is/As but never reaches the client.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func as(err error) (*Error, bool) {
	var coded *Error
	if err == nil || !errors.As(err, &coded) {
		return nil, false
	}
	return coded, true
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	coded, ok := as(err)
	return ok && coded.Code == code
}

// CodeOf returns the outermost code in err's chain. Untyped and nil errors
// are Internal.
func CodeOf(err error) Code {
	if coded, ok := as(err); ok && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// MessageOf returns the message that is safe to show a client. Untyped errors
// may hold SQL, paths or provider output, so they collapse to "internal error".
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	if coded, ok := as(err); ok && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to its response status; Upstream, Internal and
// unknown codes are 500.
func HTTPStatus(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
