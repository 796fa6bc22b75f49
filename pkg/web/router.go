package web

import (
	"github.com/gofiber/fiber/v3"
)

// RegisterRoutes mounts all engine endpoints on the app.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers) {
	app.Post("/events", handlers.FireEvent)

	flows := app.Group("/flows")
	flows.Get("/", handlers.GetFlows)
	flows.Post("/", handlers.CreateFlow)
	flows.Get("/:id", handlers.GetFlow)
	flows.Delete("/:id", handlers.DeleteFlow)
	flows.Post("/:id/activate", handlers.ActivateFlow)
	flows.Post("/:id/deactivate", handlers.DeactivateFlow)
	flows.Post("/:id/start", handlers.StartFlow)
	flows.Get("/:id/executions", handlers.GetFlowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)

	app.Get("/health", handlers.HealthCheck)
}
