package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryTimeout       ErrorCategory = "timeout"

	// Domain taxonomy for the scan-merge-notify workflow
	ErrorCategoryProvider     ErrorCategory = "provider"
	ErrorCategoryStore        ErrorCategory = "store"
	ErrorCategoryDuplicate    ErrorCategory = "duplicate"
	ErrorCategoryNotification ErrorCategory = "notification"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// NewProviderError reports an unreachable, failing or malformed market data upstream.
// Context deadline and cancellation causes are coded TIMEOUT.
func NewProviderError(code, message, serviceName string, cause error) *ServiceError {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		code = "TIMEOUT"
	}
	return NewServiceError(ErrorCategoryProvider, code, message, serviceName, "fetch_snapshot", IsRetryableError(cause), cause)
}

// NewStoreError reports a connectivity or query failure in the record store
func NewStoreError(code, message, operation string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryStore, code, message, "record-store", operation, IsRetryableError(cause), cause)
}

// NewDuplicateError reports a uniqueness violation the user can correct
func NewDuplicateError(message, operation string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryDuplicate, "DUPLICATE", message, "record-store", operation, false, cause)
}

// NewNotificationError reports an alert that could not be delivered
func NewNotificationError(code, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryNotification, code, message, "notification-dispatcher", "notify", IsRetryableError(cause), cause)
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// GetCategory returns the error category
func (e *ServiceError) GetCategory() ErrorCategory {
	return e.Category
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	entry := logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"timestamp":        e.Timestamp,
		"details":          e.Details,
		"underlying_error": e.Cause,
	})

	// Duplicates are user-correctable, not system faults
	if e.Category == ErrorCategoryDuplicate {
		entry.Info("Duplicate request rejected")
		return
	}
	entry.Error("Service error occurred")
}

// HasCategory reports whether any ServiceError in err's chain has the given category
func HasCategory(err error, category ErrorCategory) bool {
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		return false
	}
	return serviceErr.Category == category
}

func IsProviderError(err error) bool     { return HasCategory(err, ErrorCategoryProvider) }
func IsStoreError(err error) bool        { return HasCategory(err, ErrorCategoryStore) }
func IsDuplicateError(err error) bool    { return HasCategory(err, ErrorCategoryDuplicate) }
func IsNotificationError(err error) bool { return HasCategory(err, ErrorCategoryNotification) }

// BuildBatchProcessingErrorSummary creates a comprehensive error summary for batch processing results
func BuildBatchProcessingErrorSummary(successCount, totalErrorCount int, sampleErrors []error) string {
	var summaryBuilder strings.Builder
	summaryBuilder.WriteString(fmt.Sprintf("batch processing completed with %d successes and %d failures", successCount, totalErrorCount))

	// Include sample errors for debugging (limited to prevent memory issues)
	sampleSize := len(sampleErrors)
	if sampleSize > 3 {
		sampleSize = 3
	}

	for i := 0; i < sampleSize; i++ {
		summaryBuilder.WriteString(fmt.Sprintf("; %s", sampleErrors[i].Error()))
	}

	if totalErrorCount > len(sampleErrors) {
		summaryBuilder.WriteString(fmt.Sprintf("; and %d additional errors", totalErrorCount-len(sampleErrors)))
	}

	return summaryBuilder.String()
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.IsRetryable()
	}

	// Default heuristics for standard errors
	errorMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "service unavailable", "too many requests",
		"network", "dns", "socket", "deadlock", "connection lost",
		"server shutdown", "eof",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errorMsg, pattern) {
			return true
		}
	}

	return false
}
