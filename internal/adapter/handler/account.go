package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/storage"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/ledger"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/security"
)

type AccountHandler struct {
	Gate      *ledger.ApprovalGate
	Allowance *ledger.AllowanceScheduler
	Clock     ledger.PeriodClock
	Tokens    *storage.TokenRepository
	Currency  string
}

// SignupRequest defines what the user sends us
type SignupRequest struct {
	ID      string `json:"id"`
	Secret  string `json:"secret"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Cell    string `json:"cell"`
}

type LoginRequest struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

func (h *AccountHandler) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid signup body", "error", err)
		return badRequest(c, "Invalid request body")
	}

	acc, err := h.Gate.Signup(c.Context(), ledger.SignupRequest{
		ID:      req.ID,
		Secret:  req.Secret,
		Profile: domain.Profile{Name: req.Name, Surname: req.Surname, Cell: req.Cell},
	})
	if err != nil {
		return Fail(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status":  "pending",
		"message": "Signup submitted. Await approval.",
		"account": newAccountView(acc, h.Currency),
	})
}

// Login checks the credentials of an Active account, tops up the allowance
// if it is due and hands out a fresh API key.
func (h *AccountHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	acc, err := h.Gate.Authenticate(c.Context(), req.ID, req.Secret)
	if err != nil {
		return Fail(c, err)
	}

	if _, credited, err := h.Allowance.CreditIfDue(c.Context(), acc.ID, h.Clock.CurrentPeriod()); err != nil {
		slog.Warn("Allowance check failed at login", "account_id", acc.ID, "error", err)
	} else {
		acc = credited
	}

	realKey, keyHash, err := security.GenerateAPIKey()
	if err != nil {
		slog.Error("Crypto error generating key", "error", err)
		return Fail(c, err)
	}
	if err := h.Tokens.SaveAPIKey(c.Context(), acc.ID, keyHash, security.KeyPrefix); err != nil {
		return Fail(c, err)
	}

	slog.Info("Session started", "account_id", acc.ID)
	return c.JSON(fiber.Map{
		"api_key": realKey,
		"account": newAccountView(acc, h.Currency),
	})
}

// Me returns the caller's account after crediting any due allowance.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	id := accountID(c)
	outcome, acc, err := h.Allowance.CreditIfDue(c.Context(), id, h.Clock.CurrentPeriod())
	if err != nil {
		return Fail(c, err)
	}

	return c.JSON(fiber.Map{
		"account":   newAccountView(acc, h.Currency),
		"allowance": outcome,
	})
}
