package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeValidation, "Test error", nil)

	if err.Code != ErrCodeValidation {
		t.Errorf("Expected code %s, got %s", ErrCodeValidation, err.Code)
	}

	if err.Message != "Test error" {
		t.Errorf("Expected message 'Test error', got %s", err.Message)
	}

	if err.Severity != SeverityLow {
		t.Errorf("Expected severity %s, got %s", SeverityLow, err.Severity)
	}
}

func TestAppErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		code           ErrorCode
		expectedStatus int
	}{
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeSessionExpired, http.StatusUnauthorized},
		{ErrCodeValidation, http.StatusUnprocessableEntity},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeUpstreamRejected, http.StatusBadRequest},
		{ErrCodeUpstream, http.StatusBadGateway},
		{ErrCodeBrokerUnavailable, http.StatusInternalServerError},
		{ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, test := range tests {
		err := New(test.code, "Test", nil)
		status := err.HTTPStatus()

		if status != test.expectedStatus {
			t.Errorf("Code %s: expected status %d, got %d", test.code, test.expectedStatus, status)
		}
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeUpstream, "Broker call failed")

	if err.Code != ErrCodeUpstream {
		t.Errorf("Expected code %s, got %s", ErrCodeUpstream, err.Code)
	}

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the original cause")
	}

	// Wrapping an AppError must not re-wrap it
	again := Wrap(err, ErrCodeInternal, "other")
	if again != err {
		t.Error("Expected Wrap to pass an AppError through unchanged")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("Expected Wrap(nil) to return nil")
	}
}

func TestSeverityByCode(t *testing.T) {
	if New(ErrCodeBrokerUnavailable, "x", nil).Severity != SeverityCritical {
		t.Error("Expected broker unavailable to be critical")
	}
	if New(ErrCodeUpstream, "x", nil).Severity != SeverityHigh {
		t.Error("Expected upstream errors to be high severity")
	}
	if New(ErrCodeSessionExpired, "x", nil).Severity != SeverityMedium {
		t.Error("Expected session expired to be medium severity")
	}
}
