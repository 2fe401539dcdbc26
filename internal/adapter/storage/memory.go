package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// MemoryKV keeps everything in a map. The mutex is held only for the duration
// of a single call, never across calls.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]Entry)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Entry{}, domain.ErrNotFound
	}
	return clone(e), nil
}

func (m *MemoryKV) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr("memory put", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.apply(Mutation{Key: key, Value: value, ExpectedVersion: expectedVersion}); err != nil {
		return 0, err
	}
	return m.entries[key].Version, nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	return m.Commit(ctx, Mutation{Key: key, ExpectedVersion: AnyVersion, Delete: true})
}

func (m *MemoryKV) ListByPrefix(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Commit checks every mutation before applying any of them.
func (m *MemoryKV) Commit(ctx context.Context, muts ...Mutation) error {
	if err := ctx.Err(); err != nil {
		return storageErr("memory commit", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(muts...)
}

// apply must be called with mu held.
func (m *MemoryKV) apply(muts ...Mutation) error {
	for _, mut := range muts {
		current := m.entries[mut.Key].Version
		if !versionMatches(current, mut.ExpectedVersion) {
			return domain.ErrConflict
		}
	}

	for _, mut := range muts {
		if mut.Delete {
			delete(m.entries, mut.Key)
			continue
		}
		next := m.entries[mut.Key].Version + 1
		value := make([]byte, len(mut.Value))
		copy(value, mut.Value)
		m.entries[mut.Key] = Entry{Key: mut.Key, Value: value, Version: next}
	}
	return nil
}

func (m *MemoryKV) Close() error { return nil }

func clone(e Entry) Entry {
	v := make([]byte, len(e.Value))
	copy(v, e.Value)
	e.Value = v
	return e
}
