package serverutils

import (
	"errors"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

const genericErrorMessage = "Something went wrong while processing your request"

// StatusOf maps an error kind to its HTTP status class.
func StatusOf(kind apperror.Kind) int {
	switch kind {
	case apperror.KindSessionNotFound:
		return fiber.StatusNotFound
	case apperror.KindIngestionFailed:
		return fiber.StatusServiceUnavailable
	case apperror.KindInvalidRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// PublicMessage is the text a client may see for err. 500-class causes stay in the log.
func PublicMessage(err error) string {
	appErr, ok := apperror.As(err)
	if !ok || StatusOf(appErr.Kind) >= fiber.StatusInternalServerError {
		return genericErrorMessage
	}
	return appErr.Detail
}

// ErrorHandler is installed as fiber.Config.ErrorHandler.
func ErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		}

		kind := apperror.KindOf(err)
		status := StatusOf(kind)

		details := map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"kind":   string(kind),
			"error":  err,
		}
		if status >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", details)
		} else {
			log.Warn("HTTP", "Request rejected", details)
		}

		return ctx.Status(status).JSON(KindErrorResponse(status, string(kind), PublicMessage(err)))
	}
}
