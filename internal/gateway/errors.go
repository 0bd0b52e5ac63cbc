package gateway

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/fortium-partners/logo-wall/internal/requestid"
)

// Fixed client-facing error messages.
const (
	MsgLogoNotFound   = "Logo not found"
	MsgLogoFailed     = "Failed to fetch logo"
	MsgInternalServer = "Internal server error"
	MsgNotFound       = "Not found"
)

// ErrorResponse is the only error shape the gateway returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: message})
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := MsgInternalServer
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			switch {
			case code == fiber.StatusNotFound:
				message = MsgNotFound
			case code < fiber.StatusInternalServerError:
				message = fe.Message
			}
		}

		evt := logger.Warn()
		if code >= fiber.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Str("request_id", requestid.FromFiber(c)).
			Msg("unhandled error")

		return errorResponse(c, code, message)
	}
}
