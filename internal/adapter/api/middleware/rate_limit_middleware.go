package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"speak/internal/infrastructure/ratelimit"
	"speak/pkg/errors"
	"speak/pkg/logger"
	"speak/pkg/response"
)

// RateLimit refuses requests over the action's allowance. Authenticated requests are keyed
// by user, anonymous ones by client IP.
func RateLimit(rl *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if session := SessionFrom(c); session != nil {
				key = session.UserID
			}

			allowed, wait := rl.Allow(key, action)
			if !allowed {
				logger.Warn("RATE LIMIT: %s", logger.KV("key", key, "action", action, "retry_after", wait))
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}
			return next(c)
		}
	}
}
