package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"printportal-backend/apperr"
	"printportal-backend/middlewares"
	"printportal-backend/models"
	"printportal-backend/services"
	"printportal-backend/utils"
)

// CreateRequest accepts the multipart submission form. The attachment is
// either a "file" part or a pre-uploaded fileUrl + fileName + fileSize.
func (h *Handler) CreateRequest(c *fiber.Ctx) error {
	in := services.CreateInput{
		PartNumber:     c.FormValue("partNumber"),
		Description:    c.FormValue("description"),
		Quantity:       utils.ParseIntDefault(c.FormValue("quantity"), 0),
		Deadline:       c.FormValue("deadline"),
		RequestType:    c.FormValue("requestType"),
		WorkOrderType:  c.FormValue("workOrderType"),
		RequesterName:  c.FormValue("requesterName"),
		RequesterEmail: c.FormValue("requesterEmail"),
	}

	var att *services.Attachment
	if fh, err := c.FormFile("file"); err == nil && fh.Size > 0 {
		f, err := fh.Open()
		if err != nil {
			return apperr.Internal(err)
		}
		defer f.Close()
		att = &services.Attachment{FileName: fh.Filename, Size: fh.Size, Body: f}
	} else {
		url := strings.TrimSpace(c.FormValue("fileUrl"))
		name := strings.TrimSpace(c.FormValue("fileName"))
		rawSize := strings.TrimSpace(c.FormValue("fileSize"))
		// Any part of the triple means an attachment was intended; partial ones fail validation.
		if url != "" || name != "" || rawSize != "" {
			size, _ := strconv.ParseInt(rawSize, 10, 64)
			att = &services.Attachment{FileName: name, Size: size, Locator: url}
		}
	}

	rec, err := h.Requests.Create(c.UserContext(), in, att)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (h *Handler) GetRequests(c *fiber.Ctx) error {
	var params services.ListParams
	if err := c.QueryParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query")
	}
	records, err := h.Requests.List(c.UserContext(), params)
	if err != nil {
		return err
	}
	return c.JSON(services.Redact(records, h.Auth.IsAuthenticated(c)))
}

func (h *Handler) GetRequest(c *fiber.Ctx) error {
	rec, err := h.Requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (h *Handler) UpdateRequest(c *fiber.Ctx) error {
	var in services.UpdateInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&in)
	rec, err := h.Requests.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (h *Handler) DeleteRequest(c *fiber.Ctx) error {
	if err := h.Requests.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Request deleted successfully"})
}

type batchStatusRequest struct {
	IDs    []string       `json:"ids"`
	Status *models.Status `json:"status"`
	Notes  *string        `json:"notes" validate:"omitempty,max=5000"`
}

func (h *Handler) BatchUpdateRequests(c *fiber.Ctx) error {
	var data batchStatusRequest
	if err := middlewares.BindAndValidate(c, &data); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&data)
	res, err := h.Requests.BatchUpdate(c.UserContext(), data.IDs, services.UpdateInput{Status: data.Status, Notes: data.Notes})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) BatchDeleteRequests(c *fiber.Ctx) error {
	var data batchDeleteRequest
	if err := c.BodyParser(&data); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	res, err := h.Requests.BatchDelete(c.UserContext(), data.IDs)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
