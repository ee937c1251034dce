package content

import "fmt"

// ErrorCode identifies a classified content failure.
type ErrorCode string

const (
	ErrCodeNoContent      ErrorCode = "NO_CONTENT"
	ErrCodeDownloadFailed ErrorCode = "DOWNLOAD_FAILED"
	ErrCodeInvalidFormat  ErrorCode = "INVALID_FORMAT"
	ErrCodeSizeExceeded   ErrorCode = "SIZE_EXCEEDED"
)

// Error is a classified content failure. UserMessage is safe to place in an
// explanatory email to the sender; Detail is internal diagnostics only.
type Error struct {
	Code        ErrorCode
	UserMessage string
	Detail      string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return string(e.Code)
}

func newError(code ErrorCode, userMessage, detail string) *Error {
	return &Error{Code: code, UserMessage: userMessage, Detail: detail}
}
