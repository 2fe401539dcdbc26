package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// DefaultAllowance is credited on approval and once per period after that.
const DefaultAllowance int64 = 50000

type Outcome string

const (
	Credited        Outcome = "CREDITED"
	AlreadyCredited Outcome = "ALREADY_CREDITED"
	NotEligible     Outcome = "NOT_ELIGIBLE"
)

// AllowanceScheduler issues at most one allowance per account per period.
type AllowanceScheduler struct {
	accounts AccountStore
	recorder *Recorder
	amount   int64
	retry    RetryPolicy
	log      *slog.Logger
}

func NewAllowanceScheduler(accounts AccountStore, recorder *Recorder, amount int64, retry RetryPolicy, logger *slog.Logger) *AllowanceScheduler {
	if amount <= 0 {
		amount = DefaultAllowance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AllowanceScheduler{accounts: accounts, recorder: recorder, amount: amount, retry: retry, log: logger}
}

// Amount is the fixed allowance credit.
func (s *AllowanceScheduler) Amount() int64 { return s.amount }

// CreditIfDue credits the allowance when the account has not been credited for
// period yet. The check and the credit are one version-checked write.
func (s *AllowanceScheduler) CreditIfDue(ctx context.Context, accountID, period string) (Outcome, *domain.Account, error) {
	if period == "" {
		return "", nil, fmt.Errorf("%w: allowance period is required", domain.ErrBadRequest)
	}

	for attempt := 0; attempt < s.retry.attempts(); attempt++ {
		if attempt > 0 {
			if err := s.retry.wait(ctx, attempt); err != nil {
				return "", nil, err
			}
		}

		acc, err := s.accounts.Get(ctx, accountID)
		if err != nil {
			return "", nil, err
		}
		if !acc.IsActive() {
			return NotEligible, acc, nil
		}
		if acc.LastAllowancePeriod == period {
			return AlreadyCredited, acc, nil
		}

		if acc.Balance > math.MaxInt64-s.amount {
			return "", nil, fmt.Errorf("%w: allowance would overflow the balance of %s", domain.ErrInvalidAmount, accountID)
		}

		acc.Balance += s.amount
		acc.LastAllowancePeriod = period
		at := s.recorder.Stamp(acc)

		err = s.accounts.Put(context.WithoutCancel(ctx), acc, acc.Version)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("credit allowance to %s: %w", accountID, err)
		}

		tx, _ := s.recorder.Record(context.WithoutCancel(ctx), at, domain.SystemSender, accountID, s.amount, "Allowance "+period, acc)
		s.log.Info("Allowance credited", "account_id", accountID, "period", period, "amount", s.amount, "tx_id", tx.ID)
		return Credited, acc, nil
	}

	return "", nil, fmt.Errorf("credit allowance to %s: %w", accountID, domain.ErrContention)
}
