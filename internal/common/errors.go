package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy. Configuration errors are fatal at startup; everything else
// is contained within the email being processed.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrTransientFetch = errors.New("transient fetch error")
	ErrModelCall      = errors.New("model call error")
	ErrRateLimited    = errors.New("rate limited")
	ErrValidation     = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ConfigError builds a startup-fatal configuration error.
func ConfigError(message string) error {
	return NewAppError("CONFIG_ERROR", message, ErrConfiguration)
}

// IsTransient reports whether err should be skipped-and-continued rather than
// aborting the batch.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientFetch)
}

// IsRateLimited reports whether err is the one retryable model-call failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
