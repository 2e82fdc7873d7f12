package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// AdminOnly ensures that only users with the "admin" role can access admin
// routes. It runs after Auth, which stores the role in the request context.
func AdminOnly(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied. Admins only."})
	}
	return c.Next()
}
