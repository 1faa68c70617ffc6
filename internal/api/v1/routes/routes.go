// Package routes wires the v1 API endpoints to their handlers.
package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/halcyonweb/siteporter/internal/api/v1/handlers"
)

// DefaultBaseURL is the base URL clients use when none is configured
const DefaultBaseURL = "http://localhost:8080"

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, jobs *handlers.JobHandler) {
	group := router.Group("/jobs")
	group.Post("/", jobs.CreateJob)
	group.Get("/", jobs.ListJobs)
	group.Get("/:id", jobs.GetJob)
	group.Get("/:id/log", jobs.GetJobLog)
	group.Post("/:id/cancel", jobs.CancelJob)
	group.Delete("/:id", jobs.RemoveJob)
}

// Register registers the v1 routes
func Register(app *fiber.App, jobs *handlers.JobHandler) {
	v1Group := app.Group("/api/v1")
	SetupRoutes(v1Group, jobs)
}
