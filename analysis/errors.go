package analysis

import "fmt"

// ErrorCode identifies a classified analysis failure.
type ErrorCode string

const (
	ErrCodeTimeout         ErrorCode = "TIMEOUT"
	ErrCodeNetworkError    ErrorCode = "NETWORK_ERROR"
	ErrCodeHTTPError       ErrorCode = "HTTP_ERROR"
	ErrCodeInvalidResponse ErrorCode = "INVALID_RESPONSE"
)

// Error is a classified analysis failure. UserMessage is safe to place in an
// explanatory email; Detail and StatusCode are internal diagnostics.
type Error struct {
	Code        ErrorCode
	UserMessage string
	Detail      string
	StatusCode  int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.StatusCode, e.Detail)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return string(e.Code)
}

func newError(code ErrorCode, userMessage, detail string) *Error {
	return &Error{Code: code, UserMessage: userMessage, Detail: detail}
}
