package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"printportal-backend/apperr"
	"printportal-backend/auth"
)

type loginRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var data loginRequest
	if err := c.BodyParser(&data); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Passwords.Check(data.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordNotConfigured) {
			h.Logger.Error("ADMIN_PASSWORD is not set; login disabled")
			return apperr.Misconfigured("Server configuration error. Please contact administrator.")
		}
		h.Logger.WithField("security", true).WithField("client", c.IP()).Warn("failed login attempt")
		return apperr.Unauthenticated("Invalid password")
	}

	token, err := h.Tokens.Issue()
	if err != nil {
		if errors.Is(err, auth.ErrSigningDisabled) {
			return apperr.Misconfigured("Server configuration error. Please contact administrator.")
		}
		return apperr.Internal(err)
	}

	h.Auth.SetSessionCookie(c, token)
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	h.Auth.ClearSessionCookie(c)
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) Verify(c *fiber.Ctx) error {
	if !h.Auth.IsAuthenticated(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"authenticated": false})
	}
	return c.JSON(fiber.Map{"authenticated": true})
}
