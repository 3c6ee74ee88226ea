package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// RateLimiter limits requests per client IP. Authenticated clients get
// twice the anonymous rate.
type RateLimiter struct {
	config config.RateLimitConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	// cleanupInterval for removing old limiters
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

// clientLimiter holds the rate limiters for a single client
type clientLimiter struct {
	authenticated *rate.Limiter
	anonymous     *rate.Limiter
	lastSeen      time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.BurstMultiplier < 1 {
		cfg.BurstMultiplier = 1
	}
	return &RateLimiter{
		config:          cfg,
		logger:          logger.Named("ratelimit"),
		clients:         make(map[string]*clientLimiter),
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

func newLimiter(perMinute, burstMultiplier int) *rate.Limiter {
	// use ceiling to avoid truncation for low per-minute values
	burst := int(math.Ceil(float64(perMinute) / 60.0 * float64(burstMultiplier)))
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// getLimiter returns the rate limiter for a client
func (r *RateLimiter) getLimiter(clientIP string) *clientLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Cleanup old limiters periodically
	if time.Since(r.lastCleanup) > r.cleanupInterval {
		r.cleanup()
	}

	limiter, exists := r.clients[clientIP]
	if exists {
		limiter.lastSeen = time.Now()
		return limiter
	}

	limiter = &clientLimiter{
		authenticated: newLimiter(2*r.config.RegistrationsPerMinute, r.config.BurstMultiplier),
		anonymous:     newLimiter(r.config.RegistrationsPerMinute, r.config.BurstMultiplier),
		lastSeen:      time.Now(),
	}
	r.clients[clientIP] = limiter
	return limiter
}

// cleanup removes limiters that haven't been used in a while
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-30 * time.Minute)
	for ip, limiter := range r.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
	r.lastCleanup = time.Now()
}

// Allow checks if a request is allowed based on rate limiting
func (r *RateLimiter) Allow(clientIP string, authenticated bool) bool {
	if !r.config.Enabled {
		return true
	}

	limiter := r.getLimiter(clientIP)
	if authenticated {
		return limiter.authenticated.Allow()
	}
	return limiter.anonymous.Allow()
}

// Middleware returns a gin middleware that applies rate limiting.
// Mount it after RegistrationAuthMiddleware so authenticated clients are recognized.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !r.Allow(clientIP, IsAuthenticated(c)) {
			r.logger.Debug("Rate limit exceeded", zap.String("client_ip", clientIP))
			c.Header("Retry-After", strconv.Itoa(60/max(r.config.RegistrationsPerMinute, 1)+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
