package middleware

import (
	"time"

	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
)

func LoggingMiddleware(logger *utils.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		kv := []interface{}{
			"ip", c.IP(),
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start),
		}
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			kv = append(kv, "request_id", rid)
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request", kv...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request", kv...)
		default:
			logger.Info("request", kv...)
		}
		return err
	}
}
