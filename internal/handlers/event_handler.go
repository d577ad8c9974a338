package handlers

import (
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/candidate-screener/internal/pipeline"
)

// EventHandler exposes the three pipeline entry points over HTTP. The
// pipeline's structured response becomes the HTTP status and body.
type EventHandler struct {
	resume     pipeline.ResumePipeline
	submission pipeline.SubmissionStage
	completion pipeline.CompletionStage
}

func NewEventHandler(
	resume pipeline.ResumePipeline,
	submission pipeline.SubmissionStage,
	completion pipeline.CompletionStage,
) *EventHandler {
	return &EventHandler{
		resume:     resume,
		submission: submission,
		completion: completion,
	}
}

// HandleResumeEvent handles POST /events/resume
func (h *EventHandler) HandleResumeEvent(c *fiber.Ctx) error {
	var event pipeline.UploadEvent
	if err := c.BodyParser(&event); err != nil {
		return badRequest(c, "Invalid upload event payload")
	}
	return respond(c, h.resume.Handle(c.UserContext(), event))
}

// HandleVideoEvent handles POST /events/video
func (h *EventHandler) HandleVideoEvent(c *fiber.Ctx) error {
	var event pipeline.UploadEvent
	if err := c.BodyParser(&event); err != nil {
		return badRequest(c, "Invalid upload event payload")
	}
	return respond(c, h.submission.Handle(c.UserContext(), event))
}

// HandleNotificationEvent handles POST /events/notification
func (h *EventHandler) HandleNotificationEvent(c *fiber.Ctx) error {
	var event pipeline.NotificationEvent
	if err := c.BodyParser(&event); err != nil {
		return badRequest(c, "Invalid notification event payload")
	}
	return respond(c, h.completion.Handle(c.UserContext(), event))
}

func respond(c *fiber.Ctx, resp pipeline.Response) error {
	return c.Status(resp.StatusCode).JSON(resp.Body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
