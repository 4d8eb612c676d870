package transport

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"go.uber.org/zap"
)

const correlationIDLocal = "correlationId"

// CorrelationID tags each request with X-Request-ID, generating one when the
// caller did not send it, and exposes it through the user context.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationIDLocal, id)
		c.Set(fiber.HeaderXRequestID, id)
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))

		return c.Next()
	}
}

// RequestCorrelationID returns the id assigned by CorrelationID, if any.
func RequestCorrelationID(c *fiber.Ctx) string {
	if value, ok := c.Locals(correlationIDLocal).(string); ok {
		return value
	}
	return strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
}

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if id := RequestCorrelationID(c); id != "" {
			fields = append(fields, zap.String("correlationId", id))
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
