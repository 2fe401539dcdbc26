package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/handler"
	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/middleware"
)

// NewServer builds the fiber app with every route mounted.
func NewServer(s *Services) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	accountHandler := &handler.AccountHandler{
		Gate:      s.Gate,
		Allowance: s.Allowance,
		Clock:     s.Clock,
		Tokens:    s.Tokens,
		Currency:  s.Config.Currency,
	}
	transactionHandler := &handler.TransactionHandler{Coordinator: s.Coordinator, Currency: s.Config.Currency}
	eventsHandler := &handler.EventsHandler{Registry: s.Sessions, Accounts: s.Accounts, Currency: s.Config.Currency}
	adminHandler := &handler.AdminHandler{Gate: s.Gate, Currency: s.Config.Currency}

	app.Get("/healthz", handler.Health)

	api := app.Group("/v1")

	// Public
	api.Post("/accounts", accountHandler.Signup)
	api.Post("/sessions", accountHandler.Login)

	// Protected
	auth := middleware.Protected(s.Tokens)
	api.Get("/accounts/me", auth, accountHandler.Me)
	api.Get("/accounts/me/transactions", auth, transactionHandler.GetHistory)
	api.Post("/transfers", auth, middleware.Idempotency(s.Idempotency), transactionHandler.Transfer)
	api.Get("/events", auth, eventsHandler.Stream)

	admin := app.Group("/admin", middleware.OperatorOnly(s.Config.AdminToken))
	admin.Get("/accounts/pending", adminHandler.Pending)
	admin.Post("/accounts/:id/approve", adminHandler.Approve)
	admin.Post("/accounts/:id/decline", adminHandler.Decline)

	return app
}
