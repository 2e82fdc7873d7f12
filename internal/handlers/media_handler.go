package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/kavith/streamgate/internal/runner"
	"github.com/kavith/streamgate/internal/services"
)

var (
	resolverSvc  *services.Resolver
	tokenSvc     *services.TokenService
	orchestrator *services.Orchestrator
)

// InitMediaHandler wires the media routes to their services.
func InitMediaHandler(r *services.Resolver, t *services.TokenService, o *services.Orchestrator) {
	resolverSvc = r
	tokenSvc = t
	orchestrator = o
}

func validSourceURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ResolveInfoHandler returns the downloadable formats of a source URL.
func ResolveInfoHandler(c *fiber.Ctx) error {
	var request struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "detail": "Invalid request body"})
	}
	if !validSourceURL(request.URL) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "detail": "A valid http(s) url is required"})
	}

	info, err := resolverSvc.ResolveFormats(c.Context(), request.URL)
	if err != nil {
		return mediaError(c, err)
	}
	return c.JSON(info)
}

// IssueTokenHandler issues a stream token bound to one download configuration.
func IssueTokenHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var request struct {
		URL      string `json:"url"`
		FormatID string `json:"format_id"`
		Title    string `json:"title"`
	}
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "detail": "Invalid request body"})
	}
	if !validSourceURL(request.URL) || request.FormatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "detail": "url and format_id are required"})
	}

	tok, err := tokenSvc.Issue(c.Context(), userID, request.URL, request.FormatID, request.Title)
	if err != nil {
		return mediaError(c, err)
	}
	return c.JSON(fiber.Map{"token": tok.ID, "expires_at": tok.ExpiresAt})
}

// RefreshTokenHandler extends a token's expiry.
func RefreshTokenHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var request struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&request); err != nil || request.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "detail": "token is required"})
	}

	tok, err := tokenSvc.Refresh(c.Context(), request.Token, userID)
	if err != nil {
		return mediaError(c, err)
	}
	return c.JSON(fiber.Map{"token": tok.ID, "expires_at": tok.ExpiresAt})
}

// RevokeTokenHandler revokes a token; revoking twice is a no-op success.
func RevokeTokenHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var request struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&request); err != nil || request.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "detail": "token is required"})
	}

	if err := tokenSvc.Revoke(c.Context(), request.Token, userID); err != nil {
		return mediaError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Token revoked"})
}

// DownloadHandler streams the media bytes for a valid token.
func DownloadHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	tier, _ := c.Locals("tier").(string)
	tokenID := c.Params("token")

	delivery, err := orchestrator.Start(c.Context(), tokenID, userID, tier, c.Query("filename"))
	if err != nil {
		return mediaError(c, err)
	}

	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", delivery.Filename))
	c.Set(fiber.HeaderContentType, "application/octet-stream")
	return c.SendStream(delivery, int(delivery.Size))
}

// mediaError maps domain errors onto HTTP responses with a machine-readable
// kind. Subprocess detail stays server-side.
func mediaError(c *fiber.Ctx, err error) error {
	var procErr *runner.ProcError
	switch {
	case errors.Is(err, services.ErrTokenNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "token_not_found", "detail": "Unknown download token"})
	case errors.Is(err, services.ErrTokenExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "token_expired", "detail": "Download token has expired"})
	case errors.Is(err, services.ErrTokenRevoked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "token_revoked", "detail": "Download token was revoked"})
	case errors.Is(err, services.ErrTokenConsumed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "token_consumed", "detail": "Download token was already used"})
	case errors.Is(err, services.ErrTooManyDownloads):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_downloads", "detail": "Concurrent download limit reached"})
	case errors.Is(err, services.ErrClientAborted):
		// Not a server fault; the connection is gone anyway.
		log.Printf("client aborted download: %v", err)
		return nil
	case errors.Is(err, services.ErrResolutionFailed):
		log.Printf("resolution failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "resolution_failed", "detail": "Could not resolve the source URL"})
	case errors.Is(err, services.ErrOutputMissing):
		log.Printf("extractor produced no output: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "output_missing", "detail": "The extractor produced no output"})
	case errors.As(err, &procErr):
		log.Printf("extractor failure (%s, exit %d): %s", procErr.Kind, procErr.ExitCode, procErr.StderrTail)
		if procErr.Kind == runner.KindTimeout {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "timeout", "detail": "The extractor timed out"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "execution_failed", "detail": "The extractor failed"})
	default:
		log.Printf("internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "detail": "Internal server error"})
	}
}
