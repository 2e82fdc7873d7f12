package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kavith/streamgate/internal/tokenstore"
)

var tokenStore tokenstore.Store

// InitAdminHandler wires the admin routes to the token store.
func InitAdminHandler(store tokenstore.Store) {
	tokenStore = store
}

// ListTokens lists issued tokens, optionally filtered by owner.
func ListTokens(c *fiber.Ctx) error {
	tokens, err := tokenStore.List(c.Context(), c.Query("owner"))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "detail": "Failed to fetch tokens"})
	}
	return c.JSON(tokens)
}

// AdminRevokeToken force-revokes any owner's token.
func AdminRevokeToken(c *fiber.Ctx) error {
	if err := tokenSvc.Revoke(c.Context(), c.Params("id"), ""); err != nil {
		return mediaError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Token revoked"})
}
