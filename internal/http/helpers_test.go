package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.1:5555", nil, "10.0.0.1"},
		{"forwarded first hop", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"invalid forwarded falls back", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "garbage"}, "10.0.0.1"},
		{"real ip", "10.0.0.1:5555", map[string]string{"X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
		{"no port", "10.0.0.9", nil, "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIPFromRequest(r))
		})
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	assert.True(t, strings.HasPrefix(a, "req_"))
	assert.Len(t, a, len("req_")+16)
	assert.NotEqual(t, a, b)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < rateLimitRequests; i++ {
		assert.True(t, rl.allow("1.1.1.1"))
	}
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"), "limits are per client")
}

func TestRateLimiter_CleanupStaleEntries(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	rl.allow("1.1.1.1")
	rl.cleanupStaleEntries(time.Now())
	assert.Len(t, rl.clients, 1)

	rl.cleanupStaleEntries(time.Now().Add(11 * time.Minute))
	assert.Empty(t, rl.clients)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := newRateLimiter()
	rl.stop()
	assert.NotPanics(t, rl.stop)
}
