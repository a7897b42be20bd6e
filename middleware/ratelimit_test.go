package middleware

import (
	"strconv"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// fakeClock is a settable time source for the store.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now().Truncate(time.Second)} }

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func storeWithClock(clock *fakeClock) *RateLimitStore {
	s := NewRateLimitStore(0, nil)
	s.now = clock.now
	return s
}

func TestRateLimitStoreWindows(t *testing.T) {
	clock := newFakeClock()
	s := storeWithClock(clock)

	for i := 1; i <= 3; i++ {
		hit := s.Increment("k", time.Second, 2)
		assert.Equal(t, i, hit.Count)
		assert.Equal(t, i > 2, hit.Exceeded)
		assert.Equal(t, clock.t.Add(time.Second), hit.ResetAt)
	}

	clock.advance(time.Second)
	hit := s.Increment("k", time.Second, 2)
	assert.Equal(t, 1, hit.Count, "expired window starts over")
	assert.False(t, hit.Exceeded)
}

func TestRateLimitStoreGetResetCleanup(t *testing.T) {
	clock := newFakeClock()
	s := storeWithClock(clock)

	s.Increment("short", 100*time.Millisecond, 10)
	s.Increment("long", time.Minute, 10)
	s.Increment("gone", time.Minute, 10)
	assert.Equal(t, 3, s.Size())

	hit, ok := s.Get("long")
	require.True(t, ok)
	assert.Equal(t, 1, hit.Count)

	s.Reset("gone")
	_, ok = s.Get("gone")
	assert.False(t, ok)

	clock.advance(time.Second)
	_, ok = s.Get("short")
	assert.False(t, ok, "expired windows are not reported")
	assert.Equal(t, 2, s.Size(), "expired windows stay until cleanup")

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Size())

	s.ResetAll()
	assert.Equal(t, 0, s.Size())
}

func TestRateLimitStoreCleanupLoop(t *testing.T) {
	s := NewRateLimitStore(5*time.Millisecond, nil)
	defer s.Close()

	s.Increment("k", time.Millisecond, 1)
	assert.Eventually(t, func() bool { return s.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	clock := newFakeClock()
	mw := RateLimit(RateLimitConfig{WindowMs: 60000, MaxRequests: 2, Store: storeWithClock(clock)})
	reset := strconv.FormatInt(clock.t.Add(time.Minute).Unix(), 10)

	for _, remaining := range []string{"1", "0"} {
		ex := run(newRequest("GET", "/", map[string]string{"X-Real-IP": "10.0.0.1"}), mw)
		require.True(t, ex.handlerRan)
		assert.Equal(t, "2", ex.header("X-RateLimit-Limit"))
		assert.Equal(t, remaining, ex.header("X-RateLimit-Remaining"))
		assert.Equal(t, reset, ex.header("X-RateLimit-Reset"))
	}

	ex := run(newRequest("GET", "/", map[string]string{"X-Real-IP": "10.0.0.1"}), mw)
	require.NoError(t, ex.err)
	assert.False(t, ex.handlerRan)
	assert.Equal(t, http11.StatusTooManyRequests, ex.status())
	assert.Equal(t, "0", ex.header("X-RateLimit-Remaining"))
	assert.NotEmpty(t, ex.header("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(ex.ctx.Response().Body, &body))
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, defaultRateLimitMessage, body["message"])
	assert.EqualValues(t, 2, body["limit"])
	assert.EqualValues(t, 60000, body["windowMs"])

	other := run(newRequest("GET", "/", map[string]string{"X-Real-IP": "10.0.0.2"}), mw)
	assert.True(t, other.handlerRan, "keys are counted separately")
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": " 1.1.1.1 , 2.2.2.2", "X-Real-IP": "3.3.3.3"}, "", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "4.4.4.4:5000", "3.3.3.3"},
		{"remote host", nil, "4.4.4.4:5000", "4.4.4.4"},
		{"remote without port", nil, "pipe", "pipe"},
		{"unknown", nil, "", "unknown-client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest("GET", "/", tt.headers)
			req.RemoteAddr = tt.remote
			assert.Equal(t, tt.want, ClientKey(core.NewContext(req, http11.NewResponse())))
		})
	}
}
