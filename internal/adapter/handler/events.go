package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/session"
)

const (
	streamBuffer      = 16
	keepAliveInterval = 15 * time.Second
)

// AccountReader loads the current state of an account.
type AccountReader interface {
	Get(ctx context.Context, id string) (*domain.Account, error)
}

// EventsHandler keeps a server-sent events stream open per client and relays
// balance events pushed through the session registry.
type EventsHandler struct {
	Registry *session.Registry
	Accounts AccountReader
	Currency string
}

func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	id := accountID(c)
	acc, err := h.Accounts.Get(c.Context(), id)
	if err != nil {
		return Fail(c, err)
	}
	initial, err := json.Marshal(domain.NewBalanceEvent(acc, "", h.Currency))
	if err != nil {
		return Fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	stream := session.NewStream(streamBuffer)
	h.Registry.Register(id, stream)
	slog.Info("Live session opened", "account_id", id, "sessions", h.Registry.Count(id))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			stream.Close()
			h.Registry.Unregister(id, stream)
			slog.Info("Live session closed", "account_id", id)
		}()

		if writeEvent(w, domain.EventBalance, initial) != nil {
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case msg := <-stream.Messages():
				if writeEvent(w, domain.EventBalance, msg) != nil {
					return
				}
			case <-ticker.C:
				// Comment lines keep proxies from closing an idle stream.
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if w.Flush() != nil {
					return
				}
			case <-stream.Done():
				return
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event domain.EventType, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
