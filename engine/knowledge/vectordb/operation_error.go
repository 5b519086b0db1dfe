package vectordb

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// OperationErrorCode classifies vector store failures.
type OperationErrorCode string

const (
	OperationErrorValidation  OperationErrorCode = "validation"
	OperationErrorTransport   OperationErrorCode = "transport"
	OperationErrorRemote      OperationErrorCode = "remote"
	OperationErrorDecode      OperationErrorCode = "decode"
	OperationErrorUnsupported OperationErrorCode = "unsupported"
	// OperationErrorDimension marks vectors whose size differs from the
	// collection's, a deployment mismatch between embedder and index.
	OperationErrorDimension OperationErrorCode = "dimension"
)

// OperationError describes a failed store operation.
type OperationError struct {
	Operation  string
	Code       OperationErrorCode
	StatusCode int
	Message    string
	Err        error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("vectordb %s: %s", e.Operation, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the operation may succeed.
func (e *OperationError) Retryable() bool {
	switch e.Code {
	case OperationErrorTransport:
		return true
	case OperationErrorRemote:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// IsOperationError extracts an OperationError from err.
func IsOperationError(err error) (*OperationError, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}

func opErr(op string, code OperationErrorCode, message string, err error) *OperationError {
	return &OperationError{Operation: op, Code: code, Message: message, Err: err}
}

// Rejected reports whether the store refused the query itself, for example
// a filter it cannot evaluate, as opposed to being unreachable or
// misconfigured.
func (e *OperationError) Rejected() bool {
	switch e.Code {
	case OperationErrorValidation, OperationErrorUnsupported:
		return true
	case OperationErrorRemote:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	default:
		return false
	}
}

func dimensionErr(op string, got, want int) *OperationError {
	return opErr(op, OperationErrorDimension, fmt.Sprintf("vector dimension mismatch (got %d want %d)", got, want), nil)
}

// remoteErr classifies a Qdrant error response. Qdrant answers a wrong
// vector size with 400 "Vector dimension error".
func remoteErr(op string, status int, message string) *OperationError {
	code := OperationErrorRemote
	if strings.Contains(strings.ToLower(message), "dimension") {
		code = OperationErrorDimension
	}
	e := opErr(op, code, message, nil)
	e.StatusCode = status
	return e
}
