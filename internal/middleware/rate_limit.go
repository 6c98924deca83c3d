package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"buildledger/internal/caching"
	"buildledger/internal/common"

	"github.com/labstack/echo/v4"
)

// RateLimitMiddleware throttles requests per client IP using the redis
// counter. Intended for the unauthenticated auth endpoints.
func RateLimitMiddleware(cacheSvc caching.CacheService, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("ratelimit:%s:%s", c.Path(), c.RealIP())

			limited, err := cacheSvc.IsRateLimited(c.Request().Context(), key, limit, window)
			if err != nil {
				// Redis being down must not take auth down with it.
				log.Printf("WARN: rate limit check failed: %v", err)
				return next(c)
			}
			if limited {
				return common.SendError(c, http.StatusTooManyRequests, "too many requests")
			}

			if err := cacheSvc.IncrementRateLimit(c.Request().Context(), key, window); err != nil {
				log.Printf("WARN: rate limit increment failed: %v", err)
			}
			return next(c)
		}
	}
}
