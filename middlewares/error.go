package middlewares

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"printportal-backend/apperr"
	"printportal-backend/validation"
)

// NewErrorHandler centralizes error responses and keeps messages sanitized.
// Internal detail is only exposed outside production.
func NewErrorHandler(logger *logrus.Entry, production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// 1) Fiber errors (use their status code + message)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		// 2) Raw validator output
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			err = validation.ToAppError(ve)
		}

		var ae *apperr.Error
		if !errors.As(err, &ae) {
			ae = apperr.Internal(err)
		}

		body := fiber.Map{"error": ae.Message}
		if len(ae.Fields) > 0 {
			body["fields"] = ae.Fields
		}
		if ae.Kind == apperr.KindRateLimited {
			reset := ae.ResetAt.UnixMilli()
			body["resetTime"] = reset
			c.Set("X-RateLimit-Limit", strconv.Itoa(ae.Limit))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		}

		// 3) Unknown errors (500)
		status := ae.Kind.HTTPStatus()
		if status >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"method":     c.Method(),
				"path":       c.Path(),
				"request_id": c.Locals("requestid"),
			}).Error("request failed")
			if !production && ae.Err != nil {
				body["detail"] = ae.Err.Error()
			}
		}
		return c.Status(status).JSON(body)
	}
}
