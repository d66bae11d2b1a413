package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a completion failure.
type ErrorType string

const (
	ErrorTypeNone      ErrorType = ""
	ErrorTypeTransient ErrorType = "transient" // rate limit, overloaded, 5xx, timeout
	ErrorTypeModel     ErrorType = "model"     // unknown model id
	ErrorTypeAuth      ErrorType = "auth"      // bad credentials
	ErrorTypeEndpoint  ErrorType = "endpoint"  // unreachable or misconfigured endpoint
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Provider   string    // Provider name if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
// Provider clients call this for failures their SDK did not already classify.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	withStatus := func(e *Error) *Error {
		e.StatusCode = statusCode
		return e
	}

	// Authentication errors (not retryable)
	if strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key") ||
		strings.Contains(lower, "authentication") {
		return withStatus(NewError(ErrorTypeAuth, "authentication failed", false, err))
	}

	// Model not found (retryable only with a different model)
	if strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "not_found") || strings.Contains(lower, "does not exist")) {
		return withStatus(NewError(ErrorTypeModel, "model not found", false, err))
	}

	if strings.Contains(errStr, "404") {
		return withStatus(NewError(ErrorTypeEndpoint, "endpoint not found", false, err))
	}

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") {
		return withStatus(NewError(ErrorTypeTransient, "connection failed", true, err))
	}

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return withStatus(NewError(ErrorTypeTransient, "request timeout", true, err))
	}

	if strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") {
		return withStatus(NewError(ErrorTypeTransient, "rate limited", true, err))
	}

	if strings.Contains(lower, "overloaded") || strings.Contains(errStr, "529") {
		return withStatus(NewError(ErrorTypeTransient, "provider overloaded", true, err))
	}

	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		return withStatus(NewError(ErrorTypeTransient, "server error", true, err))
	}

	return withStatus(NewError(ErrorTypeUnknown, "llm error", false, err))
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsTransient reports rate limits, overloads, timeouts and 5xx responses.
func IsTransient(err error) bool {
	return GetErrorType(err) == ErrorTypeTransient
}

// IsModelNotFound reports an unknown model id.
func IsModelNotFound(err error) bool {
	return GetErrorType(err) == ErrorTypeModel
}

// IsAuth reports rejected credentials.
func IsAuth(err error) bool {
	return GetErrorType(err) == ErrorTypeAuth
}
