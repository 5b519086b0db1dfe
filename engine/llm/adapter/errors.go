package llmadapter

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for provider failures
const (
	ErrCodeRateLimit         = "RATE_LIMIT_EXCEEDED"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeServiceError      = "SERVICE_ERROR"
	ErrCodeUnavailable       = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeConnectionReset   = "CONNECTION_RESET"
	ErrCodeConnectionRefused = "CONNECTION_REFUSED"
	ErrCodeInvalidModel      = "INVALID_MODEL"
	ErrCodeContentPolicy     = "CONTENT_POLICY"
)

// Error is a classified provider failure.
type Error struct {
	Code       string
	StatusCode int
	Message    string
	Provider   string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%s, status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another credential or provider might succeed.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeQuotaExceeded, ErrCodeUnauthorized, ErrCodeServiceError,
		ErrCodeUnavailable, ErrCodeTimeout, ErrCodeConnectionReset, ErrCodeConnectionRefused:
		return true
	default:
		return false
	}
}

// NewError builds an Error from an HTTP status code.
func NewError(statusCode int, message, provider string, err error) *Error {
	return &Error{
		Code:       codeForStatus(statusCode),
		StatusCode: statusCode,
		Message:    message,
		Provider:   provider,
		Err:        err,
	}
}

// NewErrorWithCode builds an Error with an explicit code.
func NewErrorWithCode(code, message, provider string, err error) *Error {
	return &Error{Code: code, Message: message, Provider: provider, Err: err}
}

// IsLLMError extracts an *Error from the chain.
func IsLLMError(err error) (*Error, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrCodeForbidden
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusServiceUnavailable:
		return ErrCodeUnavailable
	case status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServiceError
	default:
		return ErrCodeBadRequest
	}
}
