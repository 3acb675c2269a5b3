package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a service-level failure so the transport layer can map it
// to an HTTP status without inspecting message text.
type Code int

const (
	CodeInternal Code = iota
	CodeValidation
	CodeAuthentication
	CodeConflict
	CodeNotFound
)

// Authentication failures deliberately share one message. The text must not
// reveal which factor failed or whether the account exists.
const genericAuthMessage = "invalid credentials"

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func Authentication() *Error {
	return &Error{Code: CodeAuthentication, Message: genericAuthMessage}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Internal wraps an unexpected error. The wrapped cause is kept for logs;
// callers surface only the generic message.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// CodeOf extracts the classification from err, defaulting to CodeInternal
// for anything the service did not tag.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for err. Untagged errors get a
// generic message so storage internals never leak.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != CodeInternal {
		return appErr.Message
	}
	return "internal error"
}
