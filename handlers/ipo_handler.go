package handlers

import (
	"github.com/fenilmodi00/nepal-ipo-radar/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IPOHandler struct {
	Service *services.RecordService
}

func NewIPOHandler(service *services.RecordService) *IPOHandler {
	return &IPOHandler{Service: service}
}

// GetIPOs returns the merged list. A store outage is served from the last-known view.
func (h *IPOHandler) GetIPOs(c *fiber.Ctx) error {
	filter, ok := services.ParseListFilter(c.Query("status", "all"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "status must be one of all, open, coming_soon, closed, listed",
		})
	}

	listing := h.Service.List(c.UserContext(), filter)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    listing.Records,
		"count":   len(listing.Records),
		"source":  listing.Source,
		"stale":   listing.Stale,
	})
}

func (h *IPOHandler) GetIPOByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid IPO id",
		})
	}

	ipo, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return sendError(c, err)
	}
	if ipo == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "IPO not found",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    ipo,
	})
}
