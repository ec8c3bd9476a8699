package api

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func SetupRouter(app *fiber.App, handler *Handler) {
	// Middleware
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"version": os.Getenv("APP_VERSION"),
			"env":     os.Getenv("ENV"),
		})
	})

	// API Versioning
	v1 := app.Group("/v1")

	v1.Post("/chat", handler.HandleChat)
	v1.Post("/chat/stream", handler.HandleChatStream)
	v1.Post("/image", handler.HandleImage)
	v1.Post("/waterfall", handler.HandleWaterfall)
	v1.Post("/estimate", handler.HandleEstimate)
	v1.Get("/models", handler.HandleListModels)

	v1.Get("/preferences/:tier", handler.HandleGetPreference)
	v1.Put("/preferences/:tier", handler.HandleSetPreference)
	v1.Get("/usage", handler.HandleUsage)
	v1.Post("/usage/reset", handler.HandleUsageReset)
}
