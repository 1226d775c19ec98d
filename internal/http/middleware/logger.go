package middleware

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"planstore/internal/logging"
)

// Logger writes one JSON access-log line per request to stdout.
func Logger(loc *time.Location) fiber.Handler {
	return LoggerWithWriter(os.Stdout, loc)
}

// LoggerWithWriter is Logger with a caller-supplied sink. Each line carries
// ts, level, msg, request_id, method, path, status and latency (ms).
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return AccessLog(logging.New(w, loc))
}

// AccessLog logs requests through logger. Handler errors are rendered by the
// app's error handler first so the logged status is the one sent.
func AccessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := render(c, c.Next())

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.UserContext(), level, "http_request",
			slog.String("request_id", RequestIDFromCtx(c)),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Float64("latency", float64(time.Since(start).Microseconds())/1000),
		)
		return err
	}
}

// render hands a chained error to the app's error handler so the response
// status is final before metrics or logs read it.
func render(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}
	return c.App().ErrorHandler(c, err)
}
