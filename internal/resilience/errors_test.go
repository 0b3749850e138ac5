package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("server overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("lookup: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), true},
		{"net timeout", fmt.Errorf("get: %w", timeoutErr{}), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"text no such host", errors.New("dial tcp: lookup ipapi.co: no such host"), true},
		{"text client timeout", errors.New("Get \"https://ipapi.co\": context deadline exceeded (Client.Timeout exceeded while awaiting headers)"), true},
		{"plain", errors.New("invalid input: missing field"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("too many requests")
	te := NewTransientError(inner, http.StatusTooManyRequests)
	assert.Equal(t, "too many requests", te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 429, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
