package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/collab-engine/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Entities  *handlers.EntitiesHandler
	Conflicts *handlers.ConflictsHandler
	Sessions  *handlers.SessionsHandler
	Bulk      *handlers.BulkHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	entities := app.Group("/entities")
	entities.Post("", cfg.Entities.CreateEntity)
	entities.Get("/:id", cfg.Entities.GetEntity)
	entities.Post("/:id/changes", cfg.Entities.SubmitChange)
	entities.Get("/:id/history", cfg.Entities.GetHistory)
	entities.Post("/:id/snapshots/:version", cfg.Entities.RebuildSnapshot)
	entities.Get("/:id/conflicts", cfg.Conflicts.ListByEntity)
	entities.Post("/:id/sessions", cfg.Sessions.Start)
	entities.Get("/:id/sessions", cfg.Sessions.ListActive)

	app.Get("/conflicts/:id", cfg.Conflicts.Get)
	app.Post("/conflicts/:id/resolve", cfg.Conflicts.Resolve)

	app.Put("/sessions/:id/heartbeat", cfg.Sessions.Heartbeat)
	app.Delete("/sessions/:id", cfg.Sessions.End)

	app.Post("/bulk", cfg.Bulk.Submit)
	app.Get("/bulk/:id", cfg.Bulk.Get)
}
