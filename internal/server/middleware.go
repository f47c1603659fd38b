package server

import (
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"

	svcErr "github.com/proximityhq/proximity-backend/internal/errors"
)

// RegisterMiddlewares attaches the global error handling and request logging
// middlewares.
func RegisterMiddlewares(app *fiber.App, log *slog.Logger) {
	app.Use(errorHandlingMiddleware(log))
	app.Use(requestLogger(log))
}

func errorHandlingMiddleware(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", "panic", r, "stack", string(debug.Stack()))
				err = svcErr.Map(fiber.ErrInternalServerError)
			}
			if err != nil {
				mapped := svcErr.AsError(err)
				if mapped.Status >= 500 {
					log.Error("request failed", "path", c.Path(), "err", mapped)
				}
				c.Status(mapped.Status)
				_ = c.JSON(fiber.Map{"error": fiber.Map{
					"code":    mapped.Code,
					"message": mapped.Message,
				}})
				err = nil
			}
		}()
		return c.Next()
	}
}

func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug("request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}
