package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const txPrefix = "tx:"

// txKey orders entries of one owner by timestamp, then by id.
func txKey(owner string, tx domain.Transaction) string {
	return fmt.Sprintf("%s%s:%020d:%s", txPrefix, owner, tx.Timestamp.UnixNano(), tx.ID)
}

// LedgerRepository is the append-only transaction log, indexed by sender and by recipient.
type LedgerRepository struct {
	kv KV
}

func NewLedgerRepository(kv KV) *LedgerRepository {
	return &LedgerRepository{kv: kv}
}

// Append writes the transaction under both the sender and the recipient index
// in one commit. Entries are create-only, an existing key is never overwritten.
func (r *LedgerRepository) Append(ctx context.Context, tx domain.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	err = r.kv.Commit(ctx,
		Mutation{Key: txKey(tx.From, tx), Value: data, ExpectedVersion: 0},
		Mutation{Key: txKey(tx.To, tx), Value: data, ExpectedVersion: 0},
	)
	if err != nil {
		return fmt.Errorf("append transaction %s: %w", tx.ID, err)
	}
	return nil
}

// ListFor returns every transaction the account sent or received, oldest first.
func (r *LedgerRepository) ListFor(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	entries, err := r.kv.ListByPrefix(ctx, txPrefix+accountID+":")
	if err != nil {
		return nil, err
	}

	history := make([]domain.Transaction, 0, len(entries))
	for _, e := range entries {
		var tx domain.Transaction
		if err := json.Unmarshal(e.Value, &tx); err != nil {
			return nil, fmt.Errorf("failed to decode transaction %q: %w", e.Key, err)
		}
		history = append(history, tx)
	}

	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Timestamp.Equal(history[j].Timestamp) {
			return history[i].ID < history[j].ID
		}
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history, nil
}
