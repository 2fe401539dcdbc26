package storage

import (
	"context"
	"fmt"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Open connects the KV backend named by backend. The caller owns Close.
func Open(ctx context.Context, backend, databaseURL, redisURL string) (KV, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryKV(), nil
	case BackendPostgres:
		pool, err := ConnectDB(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return NewPostgresKV(pool), nil
	case BackendRedis:
		client, err := ConnectRedis(ctx, redisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisKV(client), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}
