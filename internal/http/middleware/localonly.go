package middleware

import (
	"github.com/gofiber/fiber/v2"

	"planstore/internal/apperr"
)

// LocalOnly rejects every request with apperr.ErrDebugDisabled unless the
// process runs in the local development runtime.
func LocalOnly(isLocal bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isLocal {
			return apperr.ErrDebugDisabled
		}
		return c.Next()
	}
}
