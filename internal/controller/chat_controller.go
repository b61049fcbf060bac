package controller

import (
	"bufio"

	"ad-chat-be/internal/dto"
	"ad-chat-be/internal/pkg/serverutils"
	"ad-chat-be/internal/service"
	"ad-chat-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Send(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
}

func NewChatController(service service.IChatService) IChatController {
	return &chatController{service: service}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Send)
}

// Send answers one chat turn as a plain text stream. Everything that can be
// rejected is rejected before the status line; after that the only signal
// left is the stream itself.
func (c *chatController) Send(ctx *fiber.Ctx) error {
	userId, _, err := serverutils.CurrentSession(ctx)
	if err != nil {
		return err
	}

	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	turn, err := c.service.BeginTurn(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set("X-Accel-Buffering", "no")
	ctx.Set(stream.ModeHeader, turn.AdMode.String())

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// Outcome and errors are logged and measured by the turn itself.
		_, _ = turn.Run(w)
	})
	return nil
}
