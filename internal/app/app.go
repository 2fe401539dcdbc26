// Package app assembles the ledger services from configuration. Both the HTTP
// server and the operator CLI start from here.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/storage"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/config"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/ledger"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/notifications"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/security"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/session"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/worker"
)

const webhookTimeout = 5 * time.Second

// Services holds every wired component.
type Services struct {
	Config *config.Config
	KV     storage.KV

	Accounts    *storage.AccountRepository
	Ledger      *storage.LedgerRepository
	Tokens      *storage.TokenRepository
	Jobs        *storage.JobRepository
	Idempotency *storage.IdempotencyRepository

	Sessions    *session.Registry
	Recorder    *ledger.Recorder
	Coordinator *ledger.Coordinator
	Allowance   *ledger.AllowanceScheduler
	Gate        *ledger.ApprovalGate
	Clock       ledger.PeriodClock

	Worker *worker.WebhookWorker
}

// New opens the configured store and wires the services on top of it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	kv, err := storage.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return Wire(kv, cfg, ledger.MonthlyClock{}, logger), nil
}

// Wire builds the services over an already opened store. The clock decides the
// allowance period for approvals, logins and balance queries alike.
func Wire(kv storage.KV, cfg *config.Config, clock ledger.PeriodClock, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = ledger.MonthlyClock{}
	}

	s := &Services{
		Config:      cfg,
		KV:          kv,
		Accounts:    storage.NewAccountRepository(kv),
		Ledger:      storage.NewLedgerRepository(kv),
		Tokens:      storage.NewTokenRepository(kv),
		Jobs:        storage.NewJobRepository(kv),
		Idempotency: storage.NewIdempotencyRepository(kv),
		Clock:       clock,
	}

	retry := ledger.DefaultRetryPolicy()
	if cfg.MaxCommitRetries > 0 {
		retry.MaxAttempts = cfg.MaxCommitRetries
	}
	if cfg.RetryBaseDelay > 0 {
		retry.BaseDelay = cfg.RetryBaseDelay
	}

	s.Sessions = session.NewRegistry(cfg.NotifyTimeout, logger.With("component", "sessions"))
	s.Recorder = ledger.NewRecorder(s.Ledger, s.Sessions, ledger.RecorderConfig{
		Currency: cfg.Currency,
		Logger:   logger.With("component", "recorder"),
	})
	s.Coordinator = ledger.NewCoordinator(s.Accounts, s.Recorder, retry, logger.With("component", "transfers"))
	s.Allowance = ledger.NewAllowanceScheduler(s.Accounts, s.Recorder, cfg.AllowanceAmount, retry, logger.With("component", "allowance"))
	s.Gate = ledger.NewApprovalGate(s.Accounts, security.NewBcryptVerifier(cfg.BcryptCost), s.Allowance, s.Recorder, ledger.GateConfig{
		Clock:     s.Clock,
		Requester: &worker.ApprovalQueue{Jobs: s.Jobs, WebhookURL: cfg.ApprovalWebhookURL},
		Retry:     retry,
		Logger:    logger.With("component", "approvals"),
	})
	s.Worker = &worker.WebhookWorker{
		Jobs:   s.Jobs,
		Sender: notifications.NewWebhookSender(cfg.WebhookSecret, webhookTimeout),
		Logger: logger.With("component", "worker"),
	}
	return s
}

// Close waits for pending notifications, ends the live sessions and
// releases the store.
func (s *Services) Close() error {
	s.Sessions.Wait()
	s.Sessions.Close()
	return s.KV.Close()
}
