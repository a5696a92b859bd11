package middlewares

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"printportal-backend/apperr"
	"printportal-backend/config"
	"printportal-backend/metrics"
	"printportal-backend/ratelimit"
)

// ClientID derives the rate-limit client identifier for c.
func ClientID(c *fiber.Ctx) string {
	return ratelimit.ClientIdentifier(c.Get(fiber.HeaderXForwardedFor), c.Get("X-Real-IP"), c.IP())
}

// RateLimit applies one action budget per client and reports quota headers.
func RateLimit(l *ratelimit.Limiter, action, message string, budget config.Budget) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := l.Check(ratelimit.Key(action, ClientID(c)), budget.Max, budget.Window)
		if !res.Allowed {
			metrics.RateLimitedTotal.WithLabelValues(action).Inc()
			return apperr.RateLimited(message, res.Limit, res.ResetAt)
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.UnixMilli(), 10))
		return c.Next()
	}
}
