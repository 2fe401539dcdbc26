// Package ledger holds the transfer core: the transfer coordinator, the
// allowance scheduler and the account approval gate. All account mutations go
// through version-checked writes; nothing here holds a lock across calls.
package ledger

import (
	"context"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// AccountStore is the versioned account record store.
type AccountStore interface {
	Get(ctx context.Context, id string) (*domain.Account, error)
	Create(ctx context.Context, acc *domain.Account) error
	Put(ctx context.Context, acc *domain.Account, expectedVersion int64) error
	// PutPair writes both accounts at their current Version as one atomic unit.
	PutPair(ctx context.Context, a, b *domain.Account) error
	Delete(ctx context.Context, acc *domain.Account) error
	List(ctx context.Context, status domain.Status) ([]*domain.Account, error)
}

// LedgerAppender is the append-only transaction log.
type LedgerAppender interface {
	Append(ctx context.Context, tx domain.Transaction) error
	ListFor(ctx context.Context, accountID string) ([]domain.Transaction, error)
}

// Notifier delivers events to the live sessions of an account. It must not block.
type Notifier interface {
	Notify(accountID string, event domain.Event)
}

// CredentialVerifier hashes secrets and checks them against stored hashes.
type CredentialVerifier interface {
	Hash(secret string) ([]byte, error)
	Matches(secret string, hash []byte) bool
}

// ApprovalRequester tells an operator that a new signup awaits approval.
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, acc *domain.Account) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, domain.Event) {}
