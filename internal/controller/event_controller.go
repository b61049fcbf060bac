package controller

import (
	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/pkg/serverutils"
	"ad-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IEventController interface {
	RegisterRoutes(r fiber.Router)
	Record(ctx *fiber.Ctx) error
}

type eventController struct {
	service service.IAdEventService
}

func NewEventController(service service.IAdEventService) IEventController {
	return &eventController{service: service}
}

func (c *eventController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/events/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Record)
}

func (c *eventController) Record(ctx *fiber.Ctx) error {
	var req dto.RecordAdEventsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Record(ctx.Context(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success record events", res))
}
