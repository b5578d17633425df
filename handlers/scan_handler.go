package handlers

import (
	"context"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// scanCoordinator is the scan surface the HTTP layer drives
type scanCoordinator interface {
	Scan(ctx context.Context) models.ScanOutcome
	StartAsync() (string, bool)
	Latest() (models.ScanOutcome, bool)
	InProgress() (string, bool)
}

type ScanHandler struct {
	Coordinator scanCoordinator
}

func NewScanHandler(coordinator scanCoordinator) *ScanHandler {
	return &ScanHandler{Coordinator: coordinator}
}

// TriggerScan starts a background scan and answers 202 with its id.
// With ?wait=true it blocks and returns the finished outcome.
func (h *ScanHandler) TriggerScan(c *fiber.Ctx) error {
	if c.QueryBool("wait", false) {
		outcome := h.Coordinator.Scan(c.UserContext())
		return c.JSON(fiber.Map{
			"success": outcome.Succeeded(),
			"data":    outcome,
		})
	}

	scanID, started := h.Coordinator.StartAsync()
	logrus.WithFields(logrus.Fields{
		"component": "ScanHandler",
		"scan_id":   scanID,
		"started":   started,
	}).Info("Scan triggered via API")

	message := "Scan started"
	if !started {
		message = "Scan already in progress"
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data": fiber.Map{
			"scan_id": scanID,
			"started": started,
		},
	})
}

// GetLatestScan returns the last finished outcome and whether a scan is running
func (h *ScanHandler) GetLatestScan(c *fiber.Ctx) error {
	runningID, inProgress := h.Coordinator.InProgress()
	data := fiber.Map{"in_progress": inProgress}
	if inProgress {
		data["running_scan_id"] = runningID
	}

	if outcome, ok := h.Coordinator.Latest(); ok {
		data["outcome"] = outcome
	} else {
		data["outcome"] = nil
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
