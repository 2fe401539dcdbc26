package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// Recorder performs the side effects that follow a committed balance change:
// one ledger entry and one event per affected account. Both are best-effort;
// they never undo the commit that preceded them.
type Recorder struct {
	ledger   LedgerAppender
	notifier Notifier
	stamper  *stamper
	currency string
	log      *slog.Logger
}

type RecorderConfig struct {
	Currency string
	Now      func() time.Time
	Logger   *slog.Logger
}

func NewRecorder(ledger LedgerAppender, notifier Notifier, cfg RecorderConfig) *Recorder {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		ledger:   ledger,
		notifier: notifier,
		stamper:  newStamper(cfg.Now),
		currency: cfg.Currency,
		log:      cfg.Logger,
	}
}

// Stamp picks the timestamp for a balance change touching accs and stores it
// in each account's LastTxAt. The result is later than every timestamp the
// accounts already carry, so committing the accounts at their read versions
// keeps each account's ledger in commit order.
func (r *Recorder) Stamp(accs ...*domain.Account) time.Time {
	ts := r.stamper.stamp()
	for _, acc := range accs {
		if next := acc.LastTxAt.Add(time.Nanosecond); ts.Before(next) {
			ts = next
		}
	}
	for _, acc := range accs {
		acc.LastTxAt = ts
	}
	return ts
}

// Record appends the transaction stamped at and notifies every account in
// changed. The boolean reports whether the ledger entry was written.
func (r *Recorder) Record(ctx context.Context, at time.Time, from, to string, amount int64, message string, changed ...*domain.Account) (domain.Transaction, bool) {
	tx := domain.Transaction{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Amount:    amount,
		Message:   message,
		Timestamp: at,
	}

	recorded := true
	if err := r.ledger.Append(ctx, tx); err != nil {
		// The balances are already committed. A missing entry is an anomaly to
		// reconcile, not a reason to fail the caller.
		recorded = false
		r.log.Error("Ledger anomaly: committed movement without log entry",
			"tx_id", tx.ID, "from", from, "to", to, "amount", amount, "error", err)
	}

	for _, acc := range changed {
		event := domain.NewBalanceEvent(acc, tx.ID, r.currency)
		event.Timestamp = tx.Timestamp
		r.notifier.Notify(acc.ID, event)
	}
	return tx, recorded
}

// History lists the account's transactions, oldest first.
func (r *Recorder) History(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	return r.ledger.ListFor(ctx, accountID)
}
