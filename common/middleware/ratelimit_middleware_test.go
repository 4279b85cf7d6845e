package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcdist/vcd/common/ratelimit"
)

func newThrottledEcho(t *testing.T, policy ratelimit.Policy) *echo.Echo {
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })
	limiter := ratelimit.NewRateLimiter(raw, slog.New(slog.NewTextHandler(io.Discard, nil)))

	e := echo.New()
	e.POST("/receive", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u := c.Request().Header.Get("X-User-ID"); u != "" {
				c.Set(UsernameContextKey, u)
			}
			return next(c)
		}
	}, UserRateLimitMiddleware(limiter, policy))
	return e
}

func doReceive(e *echo.Echo, user string) int {
	req := httptest.NewRequest(http.MethodPost, "/receive", nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestUserRateLimitMiddleware(t *testing.T) {
	e := newThrottledEcho(t, ratelimit.Policy{Scope: ratelimit.ScopeReceive, Limit: 2, Window: time.Minute})

	assert.Equal(t, http.StatusOK, doReceive(e, "alice"))
	assert.Equal(t, http.StatusOK, doReceive(e, "alice"))
	assert.Equal(t, http.StatusTooManyRequests, doReceive(e, "alice"))
	assert.Equal(t, http.StatusOK, doReceive(e, "bob"))
}

func TestUserRateLimitMiddleware_SkipsAnonymous(t *testing.T) {
	e := newThrottledEcho(t, ratelimit.Policy{Scope: ratelimit.ScopeReceive, Limit: 1, Window: time.Minute})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doReceive(e, ""))
	}
}

func TestUserRateLimitMiddleware_Disabled(t *testing.T) {
	e := newThrottledEcho(t, ratelimit.Policy{Scope: ratelimit.ScopeReceive})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doReceive(e, "alice"))
	}
}
