// internal/engine/errors.go
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Common engine errors
var (
	ErrBrowserNotFound = errors.New("chrome browser not found")
	ErrNoPoster        = errors.New("no poster element on page")
	ErrNotLiveElement  = errors.New("element is not bound to a live page")
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	ErrCodeNavigationTimeout ErrorCode = "NAVIGATION_TIMEOUT"
	ErrCodeNavigationError   ErrorCode = "NAVIGATION_ERROR"
	ErrCodeImageAcquisition  ErrorCode = "IMAGE_ACQUISITION"
	ErrCodePersistence       ErrorCode = "PERSISTENCE"
	ErrCodeCancelled         ErrorCode = "CANCELLED"
	ErrCodePanic             ErrorCode = "PANIC"
)

// EngineError wraps errors with additional context
type EngineError struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// Is matches another EngineError by code
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{
		Code:       code,
		Message:    message,
		Underlying: err,
		Details:    make(map[string]interface{}),
	}
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first EngineError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// NavigationFailure classifies a failed page load
func NavigationFailure(url string, err error) *EngineError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEngineError(ErrCodeNavigationTimeout, "page did not become ready in time", err).WithDetail("url", url)
	}
	return NewEngineError(ErrCodeNavigationError, "page load failed", err).WithDetail("url", url)
}
