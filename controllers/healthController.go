package controllers

import (
	"github.com/gofiber/fiber/v2"

	"printportal-backend/database"
)

func (h *Handler) Healthz(c *fiber.Ctx) error {
	if err := database.Ping(h.DB); err != nil {
		h.Logger.WithError(err).Warn("health check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
