package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/micropaywall/paygate/internal/infrastructure/ratelimit"
	"github.com/micropaywall/paygate/internal/shared/logger"
	"github.com/micropaywall/paygate/internal/shared/utils"
)

// RateLimiter enforces a per-IP request budget on one route group. Counters
// live in the shared limiter so every instance sees the same totals.
type RateLimiter struct {
	limiter ratelimit.RateLimiter
	scope   string
	limit   ratelimit.Limit
	logger  logger.Interface
}

// NewRateLimiter scopes limit to keys prefixed with scope. A nil limiter
// disables limiting.
func NewRateLimiter(limiter ratelimit.RateLimiter, scope string, limit ratelimit.Limit, log logger.Interface) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		scope:   scope,
		limit:   limit,
		logger:  log,
	}
}

// Limit returns a Gin middleware that enforces the rate limit per client IP.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limiter == nil {
			c.Next()
			return
		}

		decision, err := rl.limiter.Allow(c.Request.Context(), rl.scope+":"+c.ClientIP(), rl.limit)
		if err != nil {
			// If the limiter is unavailable, allow the request to avoid blocking all traffic
			rl.logger.Warnw("rate limiter unavailable, allowing request",
				"scope", rl.scope,
				"error", err,
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.ResetAfter.Seconds()))))
			utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
