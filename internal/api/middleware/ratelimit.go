package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/martijn/vmorch/internal/api/dto"
)

const DefaultLimiterTTL = 5 * time.Minute

// RateLimiter keeps one token bucket per client. A client is the token
// subject when authenticated, the remote IP otherwise.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	limiters sync.Map // client key -> *cachedLimiter
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

type RateLimiterOption func(*RateLimiter)

// WithTTL sets how long an idle client's bucket is kept.
func WithTTL(ttl time.Duration) RateLimiterOption {
	return func(r *RateLimiter) { r.ttl = ttl }
}

// NewRateLimiter allows perSecond requests per client with the given burst.
// perSecond <= 0 disables limiting.
func NewRateLimiter(perSecond float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{limit: rate.Limit(perSecond), burst: burst, ttl: DefaultLimiterTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// RateLimit=0 means unlimited
		if r.limit <= 0 {
			c.Next()
			return
		}

		if !r.get(clientKey(c)).Allow() {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusTooManyRequests),
				Message: "Rate limit exceeded",
				Code:    http.StatusTooManyRequests,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()
	if v, ok := r.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if now.Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(r.limit, r.burst)
	r.limiters.Store(key, &cachedLimiter{limiter: limiter, expiresAt: now.Add(r.ttl)})
	return limiter
}

func clientKey(c *gin.Context) string {
	if claims, ok := GetAuthClaims(c); ok && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	return "ip:" + c.ClientIP()
}
