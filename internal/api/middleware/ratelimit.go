package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"greendrake/haggle/internal/config"
)

const (
	clientCleanupInterval = 10 * time.Minute
	clientIdleTimeout     = 30 * time.Minute
)

// clientLimiter stores the token bucket for a specific client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware applies a per-client token bucket to every request.
type RateLimiterMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware sized from config.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(cfg.RateLimitRefillRate),
		burst:   cfg.RateLimitBucketSize,
		now:     time.Now,
	}
	// Start a background goroutine to clean up old client entries
	go rm.cleanupClients()
	return rm
}

// getClientIdentifier keys clients by IP. The limiter runs before authentication.
func getClientIdentifier(c *gin.Context) string {
	return c.ClientIP()
}

// getClientLimiter retrieves or creates the rate limiter for a given client identifier.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	client, exists := rm.clients[identifier]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(rm.limit, rm.burst)}
		rm.clients[identifier] = client
	}
	client.lastSeen = rm.now()
	return client.limiter
}

// prune drops clients idle for longer than clientIdleTimeout and returns how many were removed.
func (rm *RateLimiterMiddleware) prune() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if rm.now().Sub(client.lastSeen) > clientIdleTimeout {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// cleanupClients periodically removes old client entries from the map.
func (rm *RateLimiterMiddleware) cleanupClients() {
	for {
		time.Sleep(clientCleanupInterval)
		if count := rm.prune(); count > 0 {
			log.Printf("Rate limiter cleanup removed %d old client entries.", count)
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		if !rm.getClientLimiter(clientKey).Allow() {
			log.Printf("Rate limit exceeded for client: %s on %s %s", clientKey, c.Request.Method, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
