package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// TxResult is the outcome of a committed transfer.
type TxResult struct {
	Transaction domain.Transaction
	From        *domain.Account
	To          *domain.Account
	// Recorded is false when the balances moved but the ledger append failed.
	Recorded bool
	Attempts int
}

// Coordinator moves value between two accounts as one atomic unit,
// retrying against fresh reads whenever a concurrent writer wins the commit.
type Coordinator struct {
	accounts AccountStore
	recorder *Recorder
	retry    RetryPolicy
	log      *slog.Logger
}

func NewCoordinator(accounts AccountStore, recorder *Recorder, retry RetryPolicy, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{accounts: accounts, recorder: recorder, retry: retry, log: logger}
}

// Transfer debits fromID and credits toID by amount.
//
// Cancelling ctx stops further retries but never interrupts a commit that has
// already been submitted.
func (c *Coordinator) Transfer(ctx context.Context, fromID, toID string, amount int64, message string) (*TxResult, error) {
	switch {
	case amount <= 0:
		return nil, domain.ErrInvalidAmount
	case fromID == toID:
		return nil, domain.ErrSelfTransfer
	case len(message) > domain.MaxMessageBytes:
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", domain.ErrMessageTooLong, len(message), domain.MaxMessageBytes)
	}

	for attempt := 0; attempt < c.retry.attempts(); attempt++ {
		if attempt > 0 {
			if err := c.retry.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		from, to, err := c.load(ctx, fromID, toID)
		if err != nil {
			return nil, err
		}

		if from.Balance < amount {
			return nil, fmt.Errorf("%w: you have %d but tried to send %d", domain.ErrInsufficientFunds, from.Balance, amount)
		}
		if to.Balance > math.MaxInt64-amount {
			return nil, fmt.Errorf("%w: recipient balance would overflow", domain.ErrInvalidAmount)
		}

		from.Balance -= amount
		to.Balance += amount
		at := c.recorder.Stamp(from, to)

		err = c.accounts.PutPair(context.WithoutCancel(ctx), from, to)
		if errors.Is(err, domain.ErrConflict) {
			c.log.Debug("Transfer conflict, retrying", "from", fromID, "to", toID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("transfer %s -> %s: %w", fromID, toID, err)
		}

		tx, recorded := c.recorder.Record(context.WithoutCancel(ctx), at, fromID, toID, amount, message, from, to)
		c.log.Info("Transfer committed", "tx_id", tx.ID, "from", fromID, "to", toID, "amount", amount, "attempts", attempt+1)

		return &TxResult{Transaction: tx, From: from, To: to, Recorded: recorded, Attempts: attempt + 1}, nil
	}

	c.log.Warn("Transfer gave up after conflicts", "from", fromID, "to", toID, "attempts", c.retry.attempts())
	return nil, fmt.Errorf("transfer %s -> %s: %w", fromID, toID, domain.ErrContention)
}

// History returns the transactions the account took part in, oldest first.
func (c *Coordinator) History(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	if _, err := c.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return c.recorder.History(ctx, accountID)
}

func (c *Coordinator) load(ctx context.Context, fromID, toID string) (*domain.Account, *domain.Account, error) {
	from, err := c.accounts.Get(ctx, fromID)
	if err != nil {
		return nil, nil, err
	}
	to, err := c.accounts.Get(ctx, toID)
	if err != nil {
		return nil, nil, err
	}
	if !from.IsActive() {
		return nil, nil, fmt.Errorf("sender %q: %w", fromID, domain.ErrInactiveAccount)
	}
	if !to.IsActive() {
		return nil, nil, fmt.Errorf("recipient %q: %w", toID, domain.ErrInactiveAccount)
	}
	return from, to, nil
}
