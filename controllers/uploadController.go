package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"printportal-backend/apperr"
	"printportal-backend/metrics"
	"printportal-backend/middlewares"
	"printportal-backend/uploads"
	"printportal-backend/utils"
)

type presignRequest struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileSize int64  `json:"fileSize" validate:"gt=0"`
}

// PresignUpload issues a direct-to-storage upload credential for an admitted file.
func (h *Handler) PresignUpload(c *fiber.Ctx) error {
	var data presignRequest
	if err := c.BodyParser(&data); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(&data)
	if err := middlewares.ValidateStruct(&data); err != nil {
		return err
	}
	if err := h.Gate.Admit(data.FileName, data.FileSize); err != nil {
		metrics.UploadRejectionsTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return err
	}
	if h.Presigner == nil {
		return apperr.Misconfigured("Direct uploads are not configured")
	}

	key := uploads.GenerateKey(data.FileName, time.Now())
	p, err := h.Presigner.PresignUpload(c.UserContext(), key, h.Gate.MaxBytes(), h.PresignTTL)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "Internal error", err)
	}
	return c.JSON(p)
}
