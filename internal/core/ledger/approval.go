package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const maxIDBytes = 254

// SignupRequest carries what a new user submits.
type SignupRequest struct {
	ID      string
	Secret  string
	Profile domain.Profile
}

// ApprovalGate owns the account lifecycle: Pending -> Active on approve,
// Pending -> removed on decline.
type ApprovalGate struct {
	accounts  AccountStore
	verifier  CredentialVerifier
	allowance *AllowanceScheduler
	clock     PeriodClock
	recorder  *Recorder
	requester ApprovalRequester
	retry     RetryPolicy
	now       func() time.Time
	log       *slog.Logger
}

type GateConfig struct {
	Clock     PeriodClock
	Requester ApprovalRequester
	Retry     RetryPolicy
	Now       func() time.Time
	Logger    *slog.Logger
}

func NewApprovalGate(accounts AccountStore, verifier CredentialVerifier, allowance *AllowanceScheduler, recorder *Recorder, cfg GateConfig) *ApprovalGate {
	if cfg.Clock == nil {
		cfg.Clock = MonthlyClock{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ApprovalGate{
		accounts:  accounts,
		verifier:  verifier,
		allowance: allowance,
		clock:     cfg.Clock,
		recorder:  recorder,
		requester: cfg.Requester,
		retry:     cfg.Retry,
		now:       cfg.Now,
		log:       cfg.Logger,
	}
}

// ValidateID rejects ids that cannot be used as storage key segments.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: account id is required", domain.ErrBadRequest)
	case len(id) > maxIDBytes:
		return fmt.Errorf("%w: account id is too long", domain.ErrBadRequest)
	case strings.ContainsAny(id, ": \t\r\n"):
		return fmt.Errorf("%w: account id contains invalid characters", domain.ErrBadRequest)
	case id == domain.SystemSender:
		return fmt.Errorf("%w: account id %q is reserved", domain.ErrBadRequest, id)
	}
	return nil
}

// Signup creates a Pending account with a zero balance and asks an operator to review it.
func (g *ApprovalGate) Signup(ctx context.Context, req SignupRequest) (*domain.Account, error) {
	if err := ValidateID(req.ID); err != nil {
		return nil, err
	}
	if req.Secret == "" {
		return nil, fmt.Errorf("%w: secret is required", domain.ErrBadRequest)
	}

	hash, err := g.verifier.Hash(req.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash credentials: %w", err)
	}

	acc := &domain.Account{
		ID:             req.ID,
		CredentialHash: hash,
		Status:         domain.StatusPending,
		Balance:        0,
		Profile:        req.Profile,
		CreatedAt:      g.now().UTC(),
	}
	if err := g.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	g.log.Info("Signup submitted", "account_id", acc.ID)

	if g.requester != nil {
		if err := g.requester.RequestApproval(ctx, acc); err != nil {
			g.log.Error("Failed to request approval", "account_id", acc.ID, "error", err)
		}
	}
	return acc, nil
}

// Approve activates a Pending account and credits its first allowance.
// Approving an Active account changes nothing.
func (g *ApprovalGate) Approve(ctx context.Context, id string) (*domain.Account, error) {
	period := g.clock.CurrentPeriod()

	for attempt := 0; attempt < g.retry.attempts(); attempt++ {
		if attempt > 0 {
			if err := g.retry.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		acc, err := g.accounts.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch acc.Status {
		case domain.StatusActive:
			return acc, nil
		case domain.StatusPending:
		default:
			return nil, fmt.Errorf("approve %q in status %s: %w", id, acc.Status, domain.ErrInvalidTransition)
		}

		if acc.Balance > math.MaxInt64-g.allowance.Amount() {
			return nil, fmt.Errorf("%w: welcome allowance would overflow the balance of %q", domain.ErrInvalidAmount, id)
		}

		acc.Status = domain.StatusActive
		acc.Balance += g.allowance.Amount()
		acc.LastAllowancePeriod = period
		at := g.recorder.Stamp(acc)

		err = g.accounts.Put(context.WithoutCancel(ctx), acc, acc.Version)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("approve %q: %w", id, err)
		}

		g.recorder.Record(context.WithoutCancel(ctx), at, domain.SystemSender, id, g.allowance.Amount(), "Welcome allowance "+period, acc)
		g.log.Info("Account approved", "account_id", id, "period", period)
		return acc, nil
	}
	return nil, fmt.Errorf("approve %q: %w", id, domain.ErrContention)
}

// Decline removes a Pending account. Declining an unknown account is a no-op.
func (g *ApprovalGate) Decline(ctx context.Context, id string) error {
	for attempt := 0; attempt < g.retry.attempts(); attempt++ {
		if attempt > 0 {
			if err := g.retry.wait(ctx, attempt); err != nil {
				return err
			}
		}

		acc, err := g.accounts.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if acc.Status != domain.StatusPending {
			return fmt.Errorf("decline %q in status %s: %w", id, acc.Status, domain.ErrInvalidTransition)
		}

		err = g.accounts.Delete(context.WithoutCancel(ctx), acc)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("decline %q: %w", id, err)
		}

		g.log.Info("Account declined", "account_id", id)
		return nil
	}
	return fmt.Errorf("decline %q: %w", id, domain.ErrContention)
}

// Authenticate checks the secret and the activation state. Unknown ids and
// wrong secrets are reported the same way.
func (g *ApprovalGate) Authenticate(ctx context.Context, id, secret string) (*domain.Account, error) {
	acc, err := g.accounts.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !g.verifier.Matches(secret, acc.CredentialHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !acc.IsActive() {
		return nil, fmt.Errorf("login %q: %w", id, domain.ErrInactiveAccount)
	}
	return acc, nil
}

// Pending lists accounts awaiting review.
func (g *ApprovalGate) Pending(ctx context.Context) ([]*domain.Account, error) {
	return g.accounts.List(ctx, domain.StatusPending)
}
