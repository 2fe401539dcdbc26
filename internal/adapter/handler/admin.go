package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/ledger"
)

// AdminHandler exposes the operator side of the approval gate.
type AdminHandler struct {
	Gate     *ledger.ApprovalGate
	Currency string
}

func (h *AdminHandler) Approve(c *fiber.Ctx) error {
	acc, err := h.Gate.Approve(c.Context(), c.Params("id"))
	if err != nil {
		return Fail(c, err)
	}

	slog.Info("Operator approved account", "account_id", acc.ID)
	return c.JSON(fiber.Map{
		"status":  "approved",
		"account": newAccountView(acc, h.Currency),
	})
}

func (h *AdminHandler) Decline(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.Gate.Decline(c.Context(), id); err != nil {
		return Fail(c, err)
	}

	slog.Info("Operator declined account", "account_id", id)
	return c.JSON(fiber.Map{"status": "declined", "id": id})
}

func (h *AdminHandler) Pending(c *fiber.Ctx) error {
	accounts, err := h.Gate.Pending(c.Context())
	if err != nil {
		return Fail(c, err)
	}

	views := make([]AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, newAccountView(acc, h.Currency))
	}
	return c.JSON(fiber.Map{"accounts": views})
}

// Health reports liveness.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
