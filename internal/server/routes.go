package server

import (
	"renderwatch/internal/core/limiter"
	"renderwatch/internal/core/output"
	"renderwatch/internal/health"
	"renderwatch/internal/platform/engine"

	"github.com/gofiber/fiber/v2"
)

type Dependencies struct {
	Engine   *engine.Engine
	Limiter  *limiter.Limiter
	Writer   *output.Writer
	InboxDir string
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler(d.Engine, d.Limiter, d.InboxDir)
	app.Get("/v1/health", healthHandler.HandleHealth)

	api := app.Group("/v1")

	statusHandler := NewStatusHandler(d.Writer)
	api.Get("/jobs/:jobId", statusHandler.HandleGetJob)

	return healthHandler
}
