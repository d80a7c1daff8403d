package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of gateway failure.
type ErrorCode string

const (
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeSessionExpired    ErrorCode = "SESSION_EXPIRED"
	ErrCodeRateLimit         ErrorCode = "RATE_LIMIT"
	ErrCodeUpstream          ErrorCode = "UPSTREAM_ERROR"
	ErrCodeUpstreamRejected  ErrorCode = "UPSTREAM_REJECTED"
	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
)

// ErrorSeverity drives the log level chosen at the route boundary.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError is the error type every handler converts to before responding.
// Cause is never serialized; clients only see Code and Message.
type AppError struct {
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"request_id,omitempty"`
	Cause     error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to the status the client receives.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeUnauthorized, ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeUpstreamRejected:
		return http.StatusBadRequest
	case ErrCodeUpstream:
		return http.StatusBadGateway
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError with severity derived from the code.
func New(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  severityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// WithRequestID attaches the request ID for correlation in logs and responses.
func (e *AppError) WithRequestID(id string) *AppError {
	e.RequestID = id
	return e
}

func severityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal, ErrCodeBrokerUnavailable:
		return SeverityCritical
	case ErrCodeUpstream, ErrCodeTimeout:
		return SeverityHigh
	case ErrCodeUpstreamRejected, ErrCodeSessionExpired:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Wrap converts an arbitrary error into an AppError, passing AppErrors through.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(code, message, err)
}

// Get returns err as an *AppError, or nil if it is not one.
func Get(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return nil
}

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// NewResponse builds the response envelope for an AppError.
func NewResponse(err *AppError, path string) *ErrorResponse {
	return &ErrorResponse{
		Error:     err,
		Success:   false,
		Timestamp: time.Now(),
		Path:      path,
	}
}

// Predefined errors for the common rejection paths.
func ErrInvalidAdminToken() *AppError {
	return New(ErrCodeUnauthorized, "Invalid admin token", nil)
}

func ErrSessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session expired. Please log in again.", nil)
}

func ErrRateLimited() *AppError {
	return New(ErrCodeRateLimit, "Too many requests", nil)
}

func ErrBrokerUnavailable() *AppError {
	return New(ErrCodeBrokerUnavailable, "Broker client not available", nil)
}
