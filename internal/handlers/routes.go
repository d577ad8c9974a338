package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Register mounts every route under /api/v1.
func Register(app *fiber.App, events *EventHandler, uploads *UploadHandler, results *ResultHandler, objects *ObjectHandler) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/events/resume", events.HandleResumeEvent)
	api.Post("/events/video", events.HandleVideoEvent)
	api.Post("/events/notification", events.HandleNotificationEvent)

	api.Post("/upload", uploads.HandleUpload)
	api.Get("/results/:id", results.HandleGetResult)
	api.Get("/results/:id/similar", results.HandleGetSimilar)
	api.Delete("/results/:id", results.HandleDeleteResult)
	api.Get("/objects/:bucket/*", objects.HandleGetObject)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Candidate Screener API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/events/resume",
				"POST /api/v1/events/video",
				"POST /api/v1/events/notification",
				"POST /api/v1/upload",
				"GET /api/v1/results/:id",
				"GET /api/v1/results/:id/similar",
				"DELETE /api/v1/results/:id",
				"GET /api/v1/objects/:bucket/*",
			},
		})
	})
}

// ErrorHandler renders fiber errors as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
