package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"bookmarket/internal/infrastructure/ratelimit"
	"bookmarket/pkg/errors"
	"bookmarket/pkg/logger"
)

// RateLimit applies limiter to every request, keyed by the authenticated user or, failing that,
// the client IP.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := UserID(c)
			if key == "" {
				key = "ip:" + c.RealIP()
			}

			allowed, wait := limiter.Allow(key, action)
			if !allowed {
				logger.Warn("RATE LIMIT: %s blocked for %s (reset in %v)", action, key, wait)
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return errors.TooManyRequests("Rate limit exceeded")
			}
			return next(c)
		}
	}
}
