package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const accountPrefix = "account:"

func accountKey(id string) string { return accountPrefix + id }

// AccountRepository is the account store. Its only write primitive is a
// version-checked put: no lock is held between Get and Put.
type AccountRepository struct {
	kv KV
}

func NewAccountRepository(kv KV) *AccountRepository {
	return &AccountRepository{kv: kv}
}

// Get returns the account with Version set to the stored version.
func (r *AccountRepository) Get(ctx context.Context, id string) (*domain.Account, error) {
	e, err := r.kv.Get(ctx, accountKey(id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("account %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(e)
}

// Create stores a brand-new account. It fails with ErrAlreadyExists if the id is taken.
func (r *AccountRepository) Create(ctx context.Context, acc *domain.Account) error {
	err := r.Put(ctx, acc, 0)
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("account %q: %w", acc.ID, domain.ErrAlreadyExists)
	}
	return err
}

// Put writes the account if the stored version still equals expectedVersion.
// On success acc.Version is advanced to the new stored version.
func (r *AccountRepository) Put(ctx context.Context, acc *domain.Account, expectedVersion int64) error {
	if acc.Balance < 0 {
		return fmt.Errorf("account %q: negative balance %d: %w", acc.ID, acc.Balance, domain.ErrInsufficientFunds)
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	version, err := r.kv.Put(ctx, accountKey(acc.ID), data, expectedVersion)
	if err != nil {
		return err
	}
	acc.Version = version
	return nil
}

// PutPair commits two accounts as one atomic unit: both writes land or neither does.
func (r *AccountRepository) PutPair(ctx context.Context, a, b *domain.Account) error {
	muts := make([]Mutation, 0, 2)
	for _, acc := range []*domain.Account{a, b} {
		if acc.Balance < 0 {
			return fmt.Errorf("account %q: negative balance %d: %w", acc.ID, acc.Balance, domain.ErrInsufficientFunds)
		}
		data, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("failed to encode account: %w", err)
		}
		muts = append(muts, Mutation{Key: accountKey(acc.ID), Value: data, ExpectedVersion: acc.Version})
	}

	if err := r.kv.Commit(ctx, muts...); err != nil {
		return err
	}
	a.Version++
	b.Version++
	return nil
}

// Delete removes the account only if nobody changed it since it was read.
func (r *AccountRepository) Delete(ctx context.Context, acc *domain.Account) error {
	return r.kv.Commit(ctx, Mutation{Key: accountKey(acc.ID), ExpectedVersion: acc.Version, Delete: true})
}

// List returns every account, optionally filtered by status.
func (r *AccountRepository) List(ctx context.Context, status domain.Status) ([]*domain.Account, error) {
	entries, err := r.kv.ListByPrefix(ctx, accountPrefix)
	if err != nil {
		return nil, err
	}

	var out []*domain.Account
	for _, e := range entries {
		acc, err := decodeAccount(e)
		if err != nil {
			return nil, err
		}
		if status == "" || acc.Status == status {
			out = append(out, acc)
		}
	}
	return out, nil
}

func decodeAccount(e Entry) (*domain.Account, error) {
	var acc domain.Account
	if err := json.Unmarshal(e.Value, &acc); err != nil {
		return nil, fmt.Errorf("failed to decode account %q: %w", e.Key, err)
	}
	acc.Version = e.Version
	return &acc, nil
}
