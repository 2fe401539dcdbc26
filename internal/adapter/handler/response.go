package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// LocalAccountID is the fiber.Ctx local set by the auth middleware.
const LocalAccountID = "account_id"

var statusByKind = map[domain.Kind]int{
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindInsufficientFunds:  http.StatusUnprocessableEntity,
	domain.KindInactiveAccount:    http.StatusForbidden,
	domain.KindConflict:           http.StatusConflict,
	domain.KindContention:         http.StatusConflict,
	domain.KindStorage:            http.StatusInternalServerError,
	domain.KindInvalidAmount:      http.StatusBadRequest,
	domain.KindSelfTransfer:       http.StatusBadRequest,
	domain.KindMessageTooLong:     http.StatusBadRequest,
	domain.KindAlreadyExists:      http.StatusConflict,
	domain.KindInvalidCredentials: http.StatusUnauthorized,
	domain.KindInvalidTransition:  http.StatusConflict,
	domain.KindBadRequest:         http.StatusBadRequest,
}

// Fail writes {"error": {"kind", "message"}} with the status of the error kind.
// Internal and storage details are not echoed to the client.
func Fail(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.Path(), "kind", kind, "error", err)
		message = "internal error, please try again"
	}

	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"kind": kind, "message": message},
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{"kind": domain.KindBadRequest, "message": message},
	})
}

func accountID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalAccountID).(string)
	return id
}

// AccountView is the public shape of an account. It never carries the credential hash.
type AccountView struct {
	ID                  string         `json:"id"`
	Status              domain.Status  `json:"status"`
	Balance             int64          `json:"balance"`
	Display             string         `json:"display"`
	LastAllowancePeriod string         `json:"last_allowance_period,omitempty"`
	Profile             domain.Profile `json:"profile"`
}

func newAccountView(acc *domain.Account, currency string) AccountView {
	return AccountView{
		ID:                  acc.ID,
		Status:              acc.Status,
		Balance:             acc.Balance,
		Display:             domain.Display(acc.Balance, currency),
		LastAllowancePeriod: acc.LastAllowancePeriod,
		Profile:             acc.Profile,
	}
}
