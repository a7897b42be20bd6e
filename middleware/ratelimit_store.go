package middleware

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// window is one key's fixed counting window.
type window struct {
	count   int
	resetAt time.Time
}

// Hit is the outcome of counting one request.
type Hit struct {
	Count    int
	ResetAt  time.Time
	Exceeded bool
}

// RateLimitStore counts requests per key in fixed windows. It is shared by
// every connection and safe for concurrent use.
type RateLimitStore struct {
	windows *xsync.MapOf[string, window]
	now     func() time.Time
	log     *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimitStore creates a store. A positive cleanupInterval starts a
// goroutine that drops expired windows until Close.
func NewRateLimitStore(cleanupInterval time.Duration, log *zap.Logger) *RateLimitStore {
	if log == nil {
		log = zap.NewNop()
	}
	s := &RateLimitStore{
		windows: xsync.NewMapOf[string, window](),
		now:     time.Now,
		log:     log.Named("ratelimit"),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

// Increment counts a request for key. A missing or expired window starts a
// new one of length windowLen.
func (s *RateLimitStore) Increment(key string, windowLen time.Duration, max int) Hit {
	now := s.now()
	w, _ := s.windows.Compute(key, func(old window, loaded bool) (window, bool) {
		if !loaded || !now.Before(old.resetAt) {
			return window{count: 1, resetAt: now.Add(windowLen)}, false
		}
		old.count++
		return old, false
	})
	return Hit{Count: w.count, ResetAt: w.resetAt, Exceeded: w.count > max}
}

// Get returns the live window for key.
func (s *RateLimitStore) Get(key string) (Hit, bool) {
	w, ok := s.windows.Load(key)
	if !ok || !s.now().Before(w.resetAt) {
		return Hit{}, false
	}
	return Hit{Count: w.count, ResetAt: w.resetAt}, true
}

// Reset forgets key.
func (s *RateLimitStore) Reset(key string) {
	s.windows.Delete(key)
}

// ResetAll forgets every key.
func (s *RateLimitStore) ResetAll() {
	s.windows.Clear()
}

// Size returns the number of tracked keys, expired ones included.
func (s *RateLimitStore) Size() int {
	return s.windows.Size()
}

// Cleanup drops expired windows and returns how many it removed.
func (s *RateLimitStore) Cleanup() int {
	now := s.now()
	removed := 0
	s.windows.Range(func(key string, w window) bool {
		if !now.Before(w.resetAt) {
			s.windows.Compute(key, func(cur window, loaded bool) (window, bool) {
				expired := loaded && !now.Before(cur.resetAt)
				if expired {
					removed++
				}
				return cur, expired
			})
		}
		return true
	})
	return removed
}

// Close stops the cleanup goroutine.
func (s *RateLimitStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *RateLimitStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				s.log.Debug("expired rate limit windows removed", zap.Int("count", n))
			}
		case <-s.stop:
			return
		}
	}
}
