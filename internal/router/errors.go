package router

import "fmt"

// ErrorCode classifies selection failures so callers can distinguish bad
// input from backend trouble without parsing messages.
type ErrorCode string

const (
	// CodeInvalidParams marks a malformed query, such as missing query text.
	CodeInvalidParams ErrorCode = "invalid_params"

	// CodeInternal marks a backend failure: provider call, catalog access, or
	// prompt rendering.
	CodeInternal ErrorCode = "internal"

	// CodeConfiguration marks an impossible construction request, such as the
	// vector strategy without a catalog store.
	CodeConfiguration ErrorCode = "configuration"
)

// Error is the typed error returned by Selector operations and [New].
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("router: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("router: %s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// invalidParams builds a CodeInvalidParams error.
func invalidParams(message string) *Error {
	return &Error{Code: CodeInvalidParams, Message: message}
}

// internalErr builds a CodeInternal error wrapping cause.
func internalErr(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: cause}
}

// configErr builds a CodeConfiguration error.
func configErr(message string) *Error {
	return &Error{Code: CodeConfiguration, Message: message}
}
