package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"planstore/internal/apperr"
	"planstore/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: middleware.RequestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrInvalidPath),
		errors.Is(err, apperr.ErrInvalidArchive):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrDebugDisabled):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrSizeExceeded):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail renders err. Classified errors carry their message; I/O failures are
// logged and reported generically so paths on disk do not leak.
func fail(c *fiber.Ctx, err error) error {
	status := StatusFor(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "SIZE_EXCEEDED", "request body too large")
		}
		if status < fiber.StatusInternalServerError {
			return writeError(c, status, "HTTP_ERROR", fe.Message)
		}
	}

	if status == fiber.StatusInternalServerError {
		slog.Default().Error("request_failed",
			"request_id", middleware.RequestIDFromCtx(c),
			"path", c.Path(),
			"error", err.Error(),
		)
		return writeError(c, status, "INTERNAL_ERROR", "internal server error")
	}
	return writeError(c, status, apperr.Code(err), err.Error())
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return fail
}
