package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Lifecycle errors
	CodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	CodeNotRunning     ErrorCode = "NOT_RUNNING"
	CodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
	CodeMissingWiring  ErrorCode = "MISSING_WIRING"

	// Notification errors
	CodeInvalidNotification ErrorCode = "INVALID_NOTIFICATION"
	CodeInvalidPriority     ErrorCode = "INVALID_PRIORITY"
	CodeInvalidExpiry       ErrorCode = "INVALID_EXPIRY"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeDuplicate           ErrorCode = "DUPLICATE"

	// Interaction errors
	CodeInvalidInteraction ErrorCode = "INVALID_INTERACTION"
	CodeNotRecipient       ErrorCode = "NOT_RECIPIENT"
	CodeAlreadyResponded   ErrorCode = "ALREADY_RESPONDED"
	CodeUnknownIntent      ErrorCode = "UNKNOWN_INTENT"

	// Provider errors
	CodeProviderError ErrorCode = "PROVIDER_ERROR"

	// Storage and transport errors
	CodeStorageError    ErrorCode = "STORAGE_ERROR"
	CodeQueueFull       ErrorCode = "QUEUE_FULL"
	CodeQueueClosed     ErrorCode = "QUEUE_CLOSED"
	CodeNetworkError    ErrorCode = "NETWORK_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeProcessingError ErrorCode = "PROCESSING_ERROR"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	CodeMissingConfig ErrorCode = "MISSING_CONFIG"

	CodeUnknownError ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryLifecycle   ErrorCategory = "LIFECYCLE"
	CategoryValidation  ErrorCategory = "VALIDATION"
	CategoryStorage     ErrorCategory = "STORAGE"
	CategoryQueue       ErrorCategory = "QUEUE"
	CategoryNetwork     ErrorCategory = "NETWORK"
	CategoryRateLimit   ErrorCategory = "RATE_LIMIT"
	CategoryInteraction ErrorCategory = "INTERACTION"
	CategoryConfig      ErrorCategory = "CONFIG"
	CategoryInternal    ErrorCategory = "INTERNAL"
)

// HubError represents a standardized error with category and code
type HubError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
	Source   string        `json:"source,omitempty"`
	Cause    error         `json:"-"`
}

// Error implements the error interface
func (e *HubError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s:%s] %s (source: %s)", e.Category, e.Code, e.Message, e.Source)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *HubError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *HubError) Is(target error) bool {
	if t, ok := target.(*HubError); ok {
		return e.Code == t.Code && e.Category == t.Category
	}
	return false
}

// IsRetryable returns true if the error indicates a retryable condition
func (e *HubError) IsRetryable() bool {
	switch e.Code {
	case CodeNetworkError, CodeTimeout, CodeRateLimited, CodeStorageError, CodeQueueFull:
		return true
	default:
		return false
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain matching target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join aggregates multiple errors into a single error value
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// New creates a new HubError
func New(code ErrorCode, category ErrorCategory, message string) *HubError {
	return &HubError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// NewWithSource creates a new HubError tagged with the producing component
func NewWithSource(code ErrorCode, category ErrorCategory, message, source string) *HubError {
	return &HubError{
		Code:     code,
		Category: category,
		Message:  message,
		Source:   source,
	}
}

// Wrap creates a new HubError wrapping an underlying cause
func Wrap(err error, code ErrorCode, category ErrorCategory, message string) *HubError {
	return &HubError{
		Code:     code,
		Category: category,
		Message:  message,
		Cause:    err,
	}
}

// Wrapf creates a new HubError wrapping a cause with a formatted message
func Wrapf(err error, code ErrorCode, category ErrorCategory, format string, args ...interface{}) *HubError {
	return &HubError{
		Code:     code,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Cause:    err,
	}
}
