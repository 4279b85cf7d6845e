package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vcdist/vcd/common/ratelimit"
)

// UsernameContextKey is where the identity middleware stores the caller
const UsernameContextKey = "username"

// UserRateLimitMiddleware applies a per-user fixed-window limit.
// Requires username to be set in context by the identity middleware.
// Fails open when the limiter itself errors.
func UserRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, policy ratelimit.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !policy.Enabled() {
				return next(c)
			}

			username, ok := c.Get(UsernameContextKey).(string)
			if !ok || username == "" {
				return next(c)
			}

			result, err := rateLimiter.CheckUserLimit(c.Request().Context(), policy.Scope, username, policy.Limit, policy.Window)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "rate_limited",
					"message": "Too many requests, please wait before trying again.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window_seconds":      int64(policy.Window.Seconds()),
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
