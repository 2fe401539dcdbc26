package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/ledger"
)

type TransactionHandler struct {
	Coordinator *ledger.Coordinator
	Currency    string
}

type TransferRequest struct {
	To      string `json:"to"`
	Amount  int64  `json:"amount"` // Minor units
	Message string `json:"message"`
}

// Transfer API. The sender is always the authenticated account.
func (h *TransactionHandler) Transfer(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid body")
	}

	res, err := h.Coordinator.Transfer(c.Context(), accountID(c), req.To, req.Amount, req.Message)
	if err != nil {
		return Fail(c, err)
	}

	return c.JSON(fiber.Map{
		"status":      "success",
		"message":     "Transfer Complete!",
		"transaction": res.Transaction,
		"recorded":    res.Recorded,
		"balance":     res.From.Balance,
		"display":     domain.Display(res.From.Balance, h.Currency),
	})
}

func (h *TransactionHandler) GetHistory(c *fiber.Ctx) error {
	history, err := h.Coordinator.History(c.Context(), accountID(c))
	if err != nil {
		return Fail(c, err)
	}
	if history == nil {
		history = []domain.Transaction{}
	}

	return c.JSON(fiber.Map{
		"transactions": history,
	})
}
