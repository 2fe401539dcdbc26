package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

type kvFactory func(t *testing.T) KV

func newMemory(t *testing.T) KV {
	return NewMemoryKV()
}

// newRedis runs the backend against an in-process miniredis server.
func newRedis(t *testing.T) KV {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKV(client)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// newPostgres needs TEST_DATABASE_URL pointing at a disposable database.
func newPostgres(t *testing.T) KV {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := ConnectDB(ctx, url)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "TRUNCATE kv_entries")
	require.NoError(t, err)

	kv := NewPostgresKV(pool)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

var backends = map[string]kvFactory{
	"memory":   newMemory,
	"redis":    newRedis,
	"postgres": newPostgres,
}

func forEachBackend(t *testing.T, fn func(t *testing.T, kv KV)) {
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestKV_PutVersions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()

		v, err := kv.Put(ctx, "a", []byte("one"), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		// Create-only write of an existing key
		_, err = kv.Put(ctx, "a", []byte("dup"), 0)
		assert.ErrorIs(t, err, domain.ErrConflict)

		// Stale version
		_, err = kv.Put(ctx, "a", []byte("stale"), 7)
		assert.ErrorIs(t, err, domain.ErrConflict)

		v, err = kv.Put(ctx, "a", []byte("two"), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		v, err = kv.Put(ctx, "a", []byte("three"), AnyVersion)
		require.NoError(t, err)
		assert.Equal(t, int64(3), v)

		e, err := kv.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "three", string(e.Value))
		assert.Equal(t, int64(3), e.Version)
	})
}

func TestKV_GetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		_, err := kv.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestKV_Delete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		_, err := kv.Put(ctx, "gone", []byte("x"), 0)
		require.NoError(t, err)

		require.NoError(t, kv.Delete(ctx, "gone"))
		_, err = kv.Get(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// Deleting twice is fine
		assert.NoError(t, kv.Delete(ctx, "gone"))

		// A deleted key can be created again from version 0
		v, err := kv.Put(ctx, "gone", []byte("back"), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
	})
}

func TestKV_ListByPrefix(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		for _, k := range []string{"tx:bob:2", "tx:bob:1", "tx:bobby:1", "tx:alice:1", "account:bob"} {
			_, err := kv.Put(ctx, k, []byte(k), 0)
			require.NoError(t, err)
		}

		entries, err := kv.ListByPrefix(ctx, "tx:bob:")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "tx:bob:1", entries[0].Key)
		assert.Equal(t, "tx:bob:2", entries[1].Key)

		none, err := kv.ListByPrefix(ctx, "tx:carol:")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestKV_ListByPrefixEscapesPattern(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		_, err := kv.Put(ctx, "idem:a*b:1", []byte("x"), 0)
		require.NoError(t, err)
		_, err = kv.Put(ctx, "idem:aXb:1", []byte("y"), 0)
		require.NoError(t, err)

		entries, err := kv.ListByPrefix(ctx, "idem:a*b:")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "idem:a*b:1", entries[0].Key)
	})
}

func TestKV_CommitIsAllOrNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		_, err := kv.Put(ctx, "x", []byte("x1"), 0)
		require.NoError(t, err)
		_, err = kv.Put(ctx, "y", []byte("y1"), 0)
		require.NoError(t, err)

		// Second mutation is stale, so the first must not land either.
		err = kv.Commit(ctx,
			Mutation{Key: "x", Value: []byte("x2"), ExpectedVersion: 1},
			Mutation{Key: "y", Value: []byte("y2"), ExpectedVersion: 5},
		)
		assert.ErrorIs(t, err, domain.ErrConflict)

		x, err := kv.Get(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "x1", string(x.Value))
		assert.Equal(t, int64(1), x.Version)

		require.NoError(t, kv.Commit(ctx,
			Mutation{Key: "x", Value: []byte("x2"), ExpectedVersion: 1},
			Mutation{Key: "y", Value: []byte("y2"), ExpectedVersion: 1},
			Mutation{Key: "z", Value: []byte("z1"), ExpectedVersion: 0},
		))

		for key, want := range map[string]string{"x": "x2", "y": "y2", "z": "z1"} {
			e, err := kv.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, want, string(e.Value))
		}
	})
}

func TestKV_CommitDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		_, err := kv.Put(ctx, "d", []byte("x"), 0)
		require.NoError(t, err)

		err = kv.Commit(ctx, Mutation{Key: "d", ExpectedVersion: 2, Delete: true})
		assert.ErrorIs(t, err, domain.ErrConflict)

		require.NoError(t, kv.Commit(ctx, Mutation{Key: "d", ExpectedVersion: 1, Delete: true}))
		_, err = kv.Get(ctx, "d")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// Concurrent version-checked increments: every successful write must be
// reflected exactly once in the final value.
func TestKV_ConcurrentIncrements(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		_, err := kv.Put(ctx, "counter", []byte("0"), 0)
		require.NoError(t, err)

		const workers = 8
		const perWorker = 10
		var conflicts atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for done := 0; done < perWorker; {
					e, err := kv.Get(ctx, "counter")
					if !assert.NoError(t, err) {
						return
					}
					var n int
					_, _ = fmt.Sscan(string(e.Value), &n)
					_, err = kv.Put(ctx, "counter", []byte(fmt.Sprint(n+1)), e.Version)
					if err != nil {
						if !assert.ErrorIs(t, err, domain.ErrConflict) {
							return
						}
						conflicts.Add(1)
						continue
					}
					done++
				}
			}()
		}
		wg.Wait()

		e, err := kv.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(workers*perWorker), string(e.Value))
		assert.Equal(t, int64(workers*perWorker+1), e.Version)
		t.Logf("conflicts retried: %d", conflicts.Load())
	})
}

func TestMemoryKV_CancelledContext(t *testing.T) {
	kv := NewMemoryKV()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := kv.Put(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = kv.Get(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryKV_ValuesAreCopied(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	value := []byte("abc")
	_, err := kv.Put(ctx, "k", value, 0)
	require.NoError(t, err)

	value[0] = 'z'
	e, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(e.Value))

	e.Value[0] = 'q'
	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again.Value))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `tx:a\*b\?\[c\]\\:`, escapeGlob(`tx:a*b?[c]\:`))
	assert.Equal(t, "plain:", escapeGlob("plain:"))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "cassandra", "", "")
	assert.Error(t, err)

	kv, err := Open(context.Background(), BackendMemory, "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryKV{}, kv)
}
