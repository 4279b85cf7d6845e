package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	commonmw "github.com/vcdist/vcd/common/middleware"
)

// Headers set by the gateway after authentication
const (
	UserHeader       = "X-User-ID"
	TrustLevelHeader = "X-User-Trust-Level"
)

// TrustLevelKey is the echo context key for the caller's trust tier
const TrustLevelKey = "trust_level"

// ExtractIdentity reads the gateway identity headers into the echo context.
// Requests without X-User-ID pass through anonymous; a malformed trust level
// is rejected.
//
// Usage:
//
//	e.Use(middleware.ExtractIdentity())
//	username := middleware.GetUsername(c)
func ExtractIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get(UserHeader)
			if username == "" {
				return next(c)
			}

			level := 0
			if raw := c.Request().Header.Get(TrustLevelHeader); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, TrustLevelHeader+" must be an integer")
				}
				level = parsed
			}

			c.Set(commonmw.UsernameContextKey, username)
			c.Set(TrustLevelKey, level)
			return next(c)
		}
	}
}

// GetUsername returns the caller's username, or "" when anonymous
func GetUsername(c echo.Context) string {
	username, _ := c.Get(commonmw.UsernameContextKey).(string)
	return username
}

// GetTrustLevel returns the caller's trust tier, 0 when unset
func GetTrustLevel(c echo.Context) int {
	level, _ := c.Get(TrustLevelKey).(int)
	return level
}

// RequireUsername returns the caller's username or a 401 for anonymous requests
func RequireUsername(c echo.Context) (string, error) {
	username := GetUsername(c)
	if username == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required ("+UserHeader+" header missing)")
	}
	return username, nil
}
