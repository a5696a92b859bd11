package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"printportal-backend/apperr"
	"printportal-backend/uploads"
)

// DownloadFile streams a request's attachment, or redirects to a
// short-lived object-store URL.
func (h *Handler) DownloadFile(c *fiber.Ctx) error {
	rec, err := h.Requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("File not found")
		}
		return err
	}
	if rec.FilePath == nil || rec.FileName == nil || *rec.FilePath == "" {
		return apperr.NotFound("File not found")
	}

	dl, err := h.Storage.Open(c.UserContext(), *rec.FilePath)
	if err != nil {
		if errors.Is(err, uploads.ErrFileMissing) {
			return apperr.NotFound("File not found on disk")
		}
		if apperr.Is(err, apperr.KindInvalidPath) {
			return err
		}
		return apperr.Internal(err)
	}
	if dl.RedirectURL != "" {
		return c.Redirect(dl.RedirectURL, fiber.StatusFound)
	}

	name := strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(*rec.FileName)
	c.Set(fiber.HeaderContentType, uploads.ContentType(name))
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.SendStream(dl.Body, int(dl.Size))
}
