package llmadapter

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var statusCodeRe = regexp.MustCompile(`\b([45][0-9]{2})\b`)

// ErrorParser classifies raw provider errors
type ErrorParser struct {
	provider string
}

// NewErrorParser creates a new error parser for the given provider
func NewErrorParser(provider string) *ErrorParser {
	return &ErrorParser{provider: provider}
}

// ParseError extracts structured error information from raw errors.
// It returns nil when nothing could be classified.
func (p *ErrorParser) ParseError(err error) *Error {
	if err == nil {
		return nil
	}
	errMsg := err.Error()
	errMsgLower := strings.ToLower(errMsg)
	if statusCode := p.extractHTTPStatusCode(errMsgLower); statusCode > 0 {
		return NewError(statusCode, errMsg, p.provider, err)
	}
	if llmErr := p.matchProviderPatterns(errMsgLower, errMsg, err); llmErr != nil {
		return llmErr
	}
	return p.matchNetworkPatterns(errMsgLower, errMsg, err)
}

func (p *ErrorParser) extractHTTPStatusCode(errMsg string) int {
	match := statusCodeRe.FindStringSubmatch(errMsg)
	if len(match) < 2 {
		return 0
	}
	code, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return code
}

func (p *ErrorParser) matchProviderPatterns(errMsgLower, errMsg string, originalErr error) *Error {
	if strings.Contains(errMsgLower, "quota exceeded") || strings.Contains(errMsgLower, "resource_exhausted") ||
		strings.Contains(errMsgLower, "resource has been exhausted") {
		return NewErrorWithCode(ErrCodeQuotaExceeded, errMsg, p.provider, originalErr)
	}
	for _, pattern := range []string{"rate limit", "rate_limit", "too many requests", "tokens per minute"} {
		if strings.Contains(errMsgLower, pattern) {
			return NewError(http.StatusTooManyRequests, errMsg, p.provider, originalErr)
		}
	}
	for _, pattern := range []string{"service unavailable", "overloaded", "temporarily unavailable", "try again later"} {
		if strings.Contains(errMsgLower, pattern) {
			return NewError(http.StatusServiceUnavailable, errMsg, p.provider, originalErr)
		}
	}
	for _, pattern := range []string{"invalid api key", "invalid_api_key", "api key not valid", "unauthenticated", "unauthorized"} {
		if strings.Contains(errMsgLower, pattern) {
			return NewError(http.StatusUnauthorized, errMsg, p.provider, originalErr)
		}
	}
	if strings.Contains(errMsgLower, "model_not_found") || strings.Contains(errMsgLower, "model not found") ||
		strings.Contains(errMsgLower, "does not exist") {
		return NewErrorWithCode(ErrCodeInvalidModel, errMsg, p.provider, originalErr)
	}
	if strings.Contains(errMsgLower, "blocked") && strings.Contains(errMsgLower, "safety") {
		return NewErrorWithCode(ErrCodeContentPolicy, errMsg, p.provider, originalErr)
	}
	return nil
}

func (p *ErrorParser) matchNetworkPatterns(errMsgLower, errMsg string, originalErr error) *Error {
	for _, pattern := range []string{"timeout", "timed out", "deadline exceeded"} {
		if strings.Contains(errMsgLower, pattern) {
			return NewErrorWithCode(ErrCodeTimeout, errMsg, p.provider, originalErr)
		}
	}
	if strings.Contains(errMsgLower, "connection reset") {
		return NewErrorWithCode(ErrCodeConnectionReset, errMsg, p.provider, originalErr)
	}
	for _, pattern := range []string{"connection refused", "no such host", "network is unreachable", "eof"} {
		if strings.Contains(errMsgLower, pattern) {
			return NewErrorWithCode(ErrCodeConnectionRefused, errMsg, p.provider, originalErr)
		}
	}
	return nil
}
