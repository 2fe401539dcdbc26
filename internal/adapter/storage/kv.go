package storage

import (
	"context"
	"fmt"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// AnyVersion disables the version check of a mutation.
const AnyVersion int64 = -1

// Entry is a stored value together with its version. Versions start at 1 and
// grow by one on every write of the key.
type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

// Mutation is one write inside an atomic Commit.
// ExpectedVersion 0 means the key must not exist yet.
type Mutation struct {
	Key             string
	Value           []byte
	ExpectedVersion int64
	Delete          bool
}

// KV is the durable key-value collaborator every repository is built on.
//
// Get and ListByPrefix return domain.ErrNotFound / an empty slice for missing
// keys. Put and Commit return domain.ErrConflict when a version check fails,
// in which case nothing was written. Backend failures wrap domain.ErrStorage.
type KV interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, key string) error
	ListByPrefix(ctx context.Context, prefix string) ([]Entry, error)
	Commit(ctx context.Context, muts ...Mutation) error
	Close() error
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorage, err)
}

func versionMatches(current, expected int64) bool {
	return expected == AnyVersion || current == expected
}
