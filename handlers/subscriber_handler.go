package handlers

import (
	"context"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/gofiber/fiber/v2"
)

type subscriberRegistrar interface {
	Subscribe(ctx context.Context, email string) (*models.Subscriber, error)
}

type SubscriberHandler struct {
	Service subscriberRegistrar
}

func NewSubscriberHandler(service subscriberRegistrar) *SubscriberHandler {
	return &SubscriberHandler{Service: service}
}

// Subscribe registers an email for IPO alerts; a repeat answers 409
func (h *SubscriberHandler) Subscribe(c *fiber.Ctx) error {
	type Request struct {
		Email string `json:"email"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	subscriber, err := h.Service.Subscribe(c.UserContext(), req.Email)
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Subscribed to IPO alerts",
		"data":    subscriber,
	})
}
