package middleware

import "time"

// SetClock replaces the limiter clock in tests.
func (rm *RateLimiterMiddleware) SetClock(now func() time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.now = now
}

// Prune exposes idle client removal to tests.
func (rm *RateLimiterMiddleware) Prune() int {
	return rm.prune()
}

// ClientCount reports the number of tracked clients.
func (rm *RateLimiterMiddleware) ClientCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.clients)
}
