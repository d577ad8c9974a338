package handlers

import (
	"errors"
	"net/url"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/candidate-screener/internal/services"
)

type ObjectHandler struct {
	storageService services.StorageService
}

func NewObjectHandler(storageService services.StorageService) *ObjectHandler {
	return &ObjectHandler{storageService: storageService}
}

// HandleGetObject handles GET /objects/:bucket/*
func (h *ObjectHandler) HandleGetObject(c *fiber.Ctx) error {
	key, err := url.PathUnescape(c.Params("*"))
	if err != nil || key == "" {
		return badRequest(c, "Invalid object key")
	}

	data, err := h.storageService.ReadObject(c.UserContext(), c.Params("bucket"), key)
	if err != nil {
		if errors.Is(err, services.ErrObjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Object not found",
			})
		}
		return badRequest(c, err.Error())
	}

	c.Type(filepath.Ext(key))
	return c.Send(data)
}
