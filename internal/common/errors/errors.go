// Package errors provides the standardized error taxonomy shared by the
// notification and auth services.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Dispatch / template errors
const (
	ErrCodeValidationFailed      ErrorCode = "VALIDATION_FAILED"
	ErrCodeProviderError         ErrorCode = "PROVIDER_ERROR"
	ErrCodeTemplateNotFound      ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateRenderFailed  ErrorCode = "TEMPLATE_RENDER_FAILED"
	ErrCodeTemplateAlreadyExists ErrorCode = "TEMPLATE_ALREADY_EXISTS"
	ErrCodeUnsupportedChannel    ErrorCode = "UNSUPPORTED_CHANNEL"
	ErrCodePersistenceFailed     ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrCodeBrokerPublishFailed   ErrorCode = "BROKER_PUBLISH_FAILED"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// Auth errors
const (
	ErrCodeInvalidCredentials     ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked          ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeAccountInactive        ErrorCode = "ACCOUNT_INACTIVE"
	ErrCodeEmailNotVerified       ErrorCode = "EMAIL_NOT_VERIFIED"
	ErrCodeEmailAlreadyRegistered ErrorCode = "EMAIL_ALREADY_REGISTERED"
	ErrCodeInvalidToken           ErrorCode = "INVALID_TOKEN"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// WithMetadata attaches a key/value to the error and returns it.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed", details, false, nil)
}

// NewProviderError wraps a delivery provider failure. Provider failures are
// retryable from the caller's point of view.
func NewProviderError(provider, details string) *StandardError {
	return newError(ErrCodeProviderError, "Delivery provider failed", details, true, nil).
		WithMetadata("provider", provider)
}

func NewTemplateNotFoundError(name string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found", fmt.Sprintf("template: %s", name), false, nil)
}

func NewTemplateRenderError(name string, missing []string) *StandardError {
	return newError(ErrCodeTemplateRenderFailed, "Template could not be rendered",
		fmt.Sprintf("template: %s, missing: %s", name, strings.Join(missing, ",")), false, nil)
}

func NewTemplateAlreadyExistsError(name string) *StandardError {
	return newError(ErrCodeTemplateAlreadyExists, "Template already exists", fmt.Sprintf("template: %s", name), false, nil)
}

// NewUnsupportedChannelError is returned when a notification asks for a
// channel with no provider behind it (push, webhook...).
func NewUnsupportedChannelError(channel string) *StandardError {
	return newError(ErrCodeUnsupportedChannel, "Unsupported notification channel", fmt.Sprintf("channel: %s", channel), false, nil)
}

// NewPersistenceError wraps a storage failure. Retryable.
func NewPersistenceError(operation string, err error) *StandardError {
	details := operation
	if err != nil {
		details = fmt.Sprintf("%s: %s", operation, err.Error())
	}
	return newError(ErrCodePersistenceFailed, "Persistence operation failed", details, true, err)
}

func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, "Resource not found", fmt.Sprintf("%s: %s", resource, id), false, nil)
}

func NewBrokerPublishError(topic string, err error) *StandardError {
	return newError(ErrCodeBrokerPublishFailed, "Failed to publish event", fmt.Sprintf("topic: %s, error: %v", topic, err), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

func NewInvalidCredentialsError() *StandardError {
	return newError(ErrCodeInvalidCredentials, "Invalid credentials", "", false, nil)
}

func NewAccountLockedError(until time.Time) *StandardError {
	return newError(ErrCodeAccountLocked, "Account is temporarily locked", "", false, nil).
		WithMetadata("lockedUntil", until.UTC().Format(time.RFC3339))
}

func NewAccountInactiveError(status string) *StandardError {
	return newError(ErrCodeAccountInactive, "Account is not active", fmt.Sprintf("status: %s", status), false, nil)
}

func NewEmailNotVerifiedError() *StandardError {
	return newError(ErrCodeEmailNotVerified, "Email address has not been verified", "", false, nil)
}

func NewEmailAlreadyRegisteredError(email string) *StandardError {
	return newError(ErrCodeEmailAlreadyRegistered, "Email is already registered", email, false, nil)
}

func NewInvalidTokenError(details string) *StandardError {
	return newError(ErrCodeInvalidToken, "Invalid or expired token", details, false, nil)
}

// ==========================
// 3. Helpers
// ==========================

// As extracts a *StandardError from the chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// Normalize converts any error to a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// IsRetryableErrorCode reports whether a failure with this code may succeed on a later attempt.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeProviderError, ErrCodePersistenceFailed, ErrCodeBrokerPublishFailed:
		return true
	}
	return false
}

// GetErrorCategory groups codes for metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed, ErrCodeUnsupportedChannel:
		return "validation"
	case ErrCodeTemplateNotFound, ErrCodeTemplateRenderFailed, ErrCodeTemplateAlreadyExists:
		return "template"
	case ErrCodeProviderError:
		return "provider"
	case ErrCodePersistenceFailed:
		return "persistence"
	case ErrCodeBrokerPublishFailed:
		return "messaging"
	case ErrCodeInvalidCredentials, ErrCodeAccountLocked, ErrCodeAccountInactive,
		ErrCodeEmailNotVerified, ErrCodeEmailAlreadyRegistered, ErrCodeInvalidToken:
		return "auth"
	case ErrCodeNotFound:
		return "not_found"
	default:
		return "internal"
	}
}
