package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/handler"
	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/storage"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const IdempotencyHeader = "Idempotency-Key"

// ResponseCache holds one reservation, then one response, per idempotency key.
type ResponseCache interface {
	Lookup(ctx context.Context, scope, key string) (*storage.CachedResponse, error)
	Reserve(ctx context.Context, scope, key string) (bool, error)
	Save(ctx context.Context, scope, key string, res storage.CachedResponse) error
	Release(ctx context.Context, scope, key string) error
}

// Idempotency runs a request at most once per Idempotency-Key. The first
// request reserves the key before the handler runs; a duplicate that arrives
// while it is still running gets 409, and one that arrives later gets the
// stored response. Keys are scoped to the authenticated account, so two
// accounts may reuse the same key. Only 2xx and 4xx responses are kept;
// after a 5xx the key is released and may be retried.
func Idempotency(cache ResponseCache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyHeader)
		if key == "" {
			return c.Next()
		}
		scope, _ := c.Locals(handler.LocalAccountID).(string)
		ctx := c.Context()

		cached, err := cache.Lookup(ctx, scope, key)
		switch {
		case err == nil:
			return replay(c, cached, key)
		case !errors.Is(err, domain.ErrNotFound):
			return handler.Fail(c, err)
		}

		reserved, err := cache.Reserve(ctx, scope, key)
		if err != nil {
			return handler.Fail(c, err)
		}
		if !reserved {
			cached, err := cache.Lookup(ctx, scope, key)
			switch {
			case err == nil:
				return replay(c, cached, key)
			case errors.Is(err, domain.ErrNotFound):
				// The holder failed and released the key in between.
				return inProgress(c)
			default:
				return handler.Fail(c, err)
			}
		}

		err = c.Next()
		status := c.Response().StatusCode()
		if err != nil || status >= fiber.StatusInternalServerError {
			if rerr := cache.Release(context.WithoutCancel(ctx), scope, key); rerr != nil {
				slog.Error("Failed to release idempotency key", "error", rerr, "key", key)
			}
			return err
		}
		// The response body buffer is reused by fasthttp.
		body := append([]byte(nil), c.Response().Body()...)

		if err := cache.Save(context.WithoutCancel(ctx), scope, key, storage.CachedResponse{Status: status, Body: body}); err != nil {
			slog.Error("Failed to save idempotency key", "error", err, "key", key)
		} else {
			slog.Debug("Idempotency key saved", "key", key)
		}
		return nil
	}
}

func replay(c *fiber.Ctx, cached *storage.CachedResponse, key string) error {
	if cached.Pending {
		return inProgress(c)
	}
	slog.Info("Idempotency hit, returning cached response", "key", key)
	c.Set("X-Idempotency-Hit", "true")
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(cached.Status).Send(cached.Body)
}

func inProgress(c *fiber.Ctx) error {
	return handler.Fail(c, fmt.Errorf("%w: a request with this %s is still in progress", domain.ErrConflict, IdempotencyHeader))
}
