package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatusCode(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		category  ErrorCategory
		retriable bool
	}{
		{"too_many_requests", http.StatusTooManyRequests, CategoryRateLimited, true},
		{"request_timeout", http.StatusRequestTimeout, CategoryTimeout, true},
		{"bad_gateway", http.StatusBadGateway, CategoryUnavailable, true},
		{"service_unavailable", http.StatusServiceUnavailable, CategoryUnavailable, true},
		{"internal_server_error", http.StatusInternalServerError, CategorySystemError, true},
		{"unauthorized", http.StatusUnauthorized, CategoryUnauthorized, false},
		{"unprocessable", http.StatusUnprocessableEntity, CategoryRejected, false},
		{"bad_request", http.StatusBadRequest, CategoryInvalidRequest, false},
		{"not_found", http.StatusNotFound, CategoryInvalidRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatusCode(tt.status, "gateway said no")
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retriable, err.IsRetriable)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Contains(t, err.Error(), "gateway said no")
		})
	}
}

func TestFromTransportError(t *testing.T) {
	timeout := FromTransportError(fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.Equal(t, CategoryTimeout, timeout.Category)
	assert.True(t, timeout.IsRetriable)
	assert.True(t, stderrors.Is(timeout, context.DeadlineExceeded))

	network := FromTransportError(stderrors.New("connection refused"))
	assert.Equal(t, CategoryNetworkError, network.Category)
	assert.True(t, network.IsRetriable)
}

func TestIsRetriable(t *testing.T) {
	assert.False(t, IsRetriable(nil))
	assert.True(t, IsRetriable(stderrors.New("unknown")))
	assert.False(t, IsRetriable(fmt.Errorf("wrapped: %w", FromStatusCode(400, ""))))
	assert.True(t, IsRetriable(fmt.Errorf("wrapped: %w", FromStatusCode(503, ""))))
}
