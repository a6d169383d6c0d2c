// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrInUse          = errors.New("resource in use")

	// Identity errors.
	ErrUnauthenticated = errors.New("unauthenticated")

	// Bank link errors.
	ErrBankLinkRateLimit = errors.New("bank link rate limit exceeded")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports malformed input to a public operation.
// It is returned before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthorizationError reports that the caller does not own the referenced resource.
type AuthorizationError struct {
	Resource string
	ID       string
	Err      error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not authorized: %s %s: %v", e.Resource, e.ID, e.Err)
	}
	if e.ID == "" {
		return "not authorized: " + e.Resource
	}
	return fmt.Sprintf("not authorized: %s %s", e.Resource, e.ID)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// NewAuthorizationError creates an AuthorizationError for a resource id.
func NewAuthorizationError(resource, id string) error {
	return &AuthorizationError{Resource: resource, ID: id}
}

// DuplicateFileError reports that a file was already imported.
type DuplicateFileError struct {
	DocumentID string
	MatchType  string
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("already imported as document %s (%s)", e.DocumentID, e.MatchType)
}

// ProviderError reports that an external extraction or AI call failed
// or returned data that did not validate.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a failure of provider.
func NewProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

// ProcessingError is the catch-all failure of one batch item's pipeline.
type ProcessingError struct {
	Err     error
	Message string
	Code    string
}

func (e *ProcessingError) Error() string {
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError captures v, which may be any value, as a ProcessingError.
func NewProcessingError(code string, v any) *ProcessingError {
	err, _ := v.(error)
	return &ProcessingError{
		Err:     err,
		Message: ErrorMessage(v),
		Code:    code,
	}
}

// ErrorMessage renders any value as a non-empty, human-readable message.
// It never panics, even when v's Error or String method does.
func ErrorMessage(v any) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("unprintable error of type %T", v)
		}
	}()

	switch val := v.(type) {
	case nil:
		return "unknown error"
	case error:
		msg = val.Error()
	case fmt.Stringer:
		msg = val.String()
	case string:
		msg = val
	default:
		msg = fmt.Sprintf("%v", val)
	}

	if strings.TrimSpace(msg) == "" {
		return fmt.Sprintf("unknown error of type %T", v)
	}
	return msg
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrBankLinkRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
