package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/xraph/mirror/provider"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("connection reset"), true},
		{"too many requests", &provider.APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"bad gateway", &provider.APIError{StatusCode: http.StatusBadGateway}, true},
		{"unauthorized", &provider.APIError{StatusCode: http.StatusUnauthorized}, false},
		{"unprocessable", &provider.APIError{StatusCode: http.StatusUnprocessableEntity}, false},
		{"wrapped not found", fmt.Errorf("list: %w", &provider.APIError{StatusCode: http.StatusNotFound}), false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := provider.IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &provider.APIError{StatusCode: 401}
	if err.Error() != "provider: 401 Unauthorized" {
		t.Fatalf("Error() = %q", err.Error())
	}
	err.Message = "invalid API key"
	if err.Error() != "provider: 401 invalid API key" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
