package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/handler"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/security"
)

// KeyResolver maps a hashed API key to the account that owns it.
type KeyResolver interface {
	AccountForKey(ctx context.Context, keyHash string) (string, error)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{"kind": domain.KindInvalidCredentials, "message": message},
	})
}

func bearer(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization") // "Bearer sl_live_..."
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Protected resolves the bearer API key to an account id and stores it in
// the request locals for the handlers.
func Protected(keys KeyResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return unauthorized(c, "Missing API Key")
		}
		apiKey, ok := bearer(c)
		if !ok {
			return unauthorized(c, "Invalid Header Format")
		}

		// We never compare plain text
		accountID, err := keys.AccountForKey(c.Context(), security.HashAPIKey(apiKey))
		if err != nil {
			if domain.KindOf(err) == domain.KindInvalidCredentials {
				return unauthorized(c, "Invalid API Key")
			}
			return handler.Fail(c, err)
		}

		c.Locals(handler.LocalAccountID, accountID)
		return c.Next()
	}
}

// OperatorOnly guards the admin routes with a static operator token. An empty
// token disables the admin surface entirely.
func OperatorOnly(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got, ok := bearer(c)
		if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			slog.Warn("Rejected operator request", "path", c.Path(), "ip", c.IP())
			return unauthorized(c, "Operator token required")
		}
		return c.Next()
	}
}
