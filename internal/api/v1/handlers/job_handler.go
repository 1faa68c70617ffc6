// Package handlers contains the fiber handlers for the v1 API.
package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/services"
	"github.com/halcyonweb/siteporter/internal/types"
)

// JobHandler exposes job lifecycle operations over HTTP
type JobHandler struct {
	controller *services.Controller
}

// NewJobHandler creates a new job handler instance
func NewJobHandler(controller *services.Controller) *JobHandler {
	return &JobHandler{controller: controller}
}

// CreateJob submits a new export or import job
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	var req types.JobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
	}

	job, err := h.controller.Submit(c.Context(), &req)
	if err != nil {
		var active *types.ActiveJobError
		if errors.As(err, &active) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":         err.Error(),
				"active_job_id": active.JobID,
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

// GetJob returns a job's status with per-category progress
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	status, err := h.controller.Status(c.Context(), jobID)
	if err != nil {
		return jobError(c, err)
	}
	return c.JSON(status)
}

// ListJobs returns jobs most recent first, optionally filtered by portal
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	portalID := uint(c.QueryInt("portal_id", 0))
	opts := models.ListOptions{
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}.Normalized()

	jobs, err := h.controller.List(c.Context(), portalID, opts)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("failed to list jobs: %v", err),
		})
	}
	return c.JSON(types.JobListResponse{Jobs: jobs, Offset: opts.Offset, Limit: opts.Limit})
}

// CancelJob requests a cooperative stop of a job
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.controller.Cancel(c.Context(), jobID); err != nil {
		if errors.Is(err, types.ErrJobTerminal) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return jobError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancellation requested"})
}

// RemoveJob deletes a terminal job with its checkpoints and logs
func (h *JobHandler) RemoveJob(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.controller.Remove(c.Context(), jobID); err != nil {
		if errors.Is(err, types.ErrJobNotFound) {
			return jobError(c, err)
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetJobLog returns a job's log, summary by default, full on request
func (h *JobHandler) GetJobLog(c *fiber.Ctx) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	switch mode := c.Query("mode", "summary"); mode {
	case "summary":
		summary, err := h.controller.SummaryLog(c.Context(), jobID)
		if err != nil {
			return jobError(c, err)
		}
		return c.JSON(summary)
	case "full":
		entries, err := h.controller.FullLog(c.Context(), jobID)
		if err != nil {
			return jobError(c, err)
		}
		return c.JSON(entries)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("invalid log mode: %s", mode),
		})
	}
}

func parseJobID(c *fiber.Ctx) (uint, error) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid job id: %s", raw)
	}
	return uint(id), nil
}

func jobError(c *fiber.Ctx, err error) error {
	if errors.Is(err, types.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
