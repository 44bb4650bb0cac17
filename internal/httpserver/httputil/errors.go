package httputil

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// WriteError writes the {"error": msg} body every handler returns on failure.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	return WriteErrorFields(c, status, msg, nil)
}

// WriteErrorFields is WriteError with extra top-level fields. fields cannot
// override "error".
func WriteErrorFields(c *fiber.Ctx, status int, msg string, fields fiber.Map) error {
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	body := make(fiber.Map, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["error"] = msg
	return c.Status(status).JSON(body)
}
