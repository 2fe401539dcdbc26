package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const (
	fieldValue   = "value"
	fieldVersion = "version"
	scanBatch    = 100
)

// RedisKV stores every key as a hash {value, version}. Version checks use
// WATCH/MULTI/EXEC, so a concurrent writer aborts the transaction.
type RedisKV struct {
	client redis.UniversalClient
}

// ConnectRedis parses a redis:// URL and verifies the connection.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (Entry, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Entry{}, storageErr("redis get", err)
	}
	return entryFromHash(key, vals)
}

func (r *RedisKV) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	versions, err := r.commit(ctx, []Mutation{{Key: key, Value: value, ExpectedVersion: expectedVersion}})
	if err != nil {
		return 0, err
	}
	return versions[key], nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return storageErr("redis delete", err)
	}
	return nil
}

func (r *RedisKV) ListByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, storageErr("redis scan", err)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		e, err := r.Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted between SCAN and HGETALL.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisKV) Commit(ctx context.Context, muts ...Mutation) error {
	_, err := r.commit(ctx, muts)
	return err
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

func (r *RedisKV) commit(ctx context.Context, muts []Mutation) (map[string]int64, error) {
	keys := make([]string, 0, len(muts))
	for _, mut := range muts {
		keys = append(keys, mut.Key)
	}

	next := make(map[string]int64, len(muts))
	txf := func(tx *redis.Tx) error {
		for _, mut := range muts {
			current, err := tx.HGet(ctx, mut.Key, fieldVersion).Int64()
			if errors.Is(err, redis.Nil) {
				current = 0
			} else if err != nil {
				return storageErr("redis read version", err)
			}
			if !versionMatches(current, mut.ExpectedVersion) {
				return domain.ErrConflict
			}
			next[mut.Key] = current + 1
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, mut := range muts {
				if mut.Delete {
					pipe.Del(ctx, mut.Key)
					continue
				}
				pipe.HSet(ctx, mut.Key, fieldValue, mut.Value, fieldVersion, next[mut.Key])
			}
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, keys...)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, domain.ErrConflict):
		return nil, domain.ErrConflict
	case errors.Is(err, domain.ErrStorage):
		return nil, err
	default:
		return nil, storageErr("redis commit", err)
	}
}

func entryFromHash(key string, vals map[string]string) (Entry, error) {
	raw, ok := vals[fieldValue]
	if !ok {
		return Entry{}, domain.ErrNotFound
	}
	var version int64
	if _, err := fmt.Sscan(vals[fieldVersion], &version); err != nil {
		return Entry{}, storageErr("redis decode version", err)
	}
	return Entry{Key: key, Value: []byte(raw), Version: version}, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
