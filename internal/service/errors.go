package service

import "github.com/gofiber/fiber/v2"

var (
	ErrConversationNotFound = fiber.NewError(fiber.StatusNotFound, "conversation not found")
	ErrTurnConflict         = fiber.NewError(fiber.StatusConflict, "a reply is still being generated for this conversation")
	ErrGenerationStart      = fiber.NewError(fiber.StatusBadGateway, "failed to start generation")
)
