package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const idemPrefix = "idem:"

// ReservationTTL is how long an unfinished reservation blocks its key. A
// request that crashed mid-flight frees the key once it expires.
const ReservationTTL = time.Minute

// CachedResponse is the stored result of a request made with an Idempotency-Key.
// A Pending entry marks a request that holds the key but has not finished.
type CachedResponse struct {
	Status     int       `json:"status"`
	Body       []byte    `json:"body"`
	Pending    bool      `json:"pending,omitempty"`
	ReservedAt time.Time `json:"reserved_at,omitempty"`
}

type IdempotencyRepository struct {
	kv  KV
	now func() time.Time
}

func NewIdempotencyRepository(kv KV) *IdempotencyRepository {
	return &IdempotencyRepository{kv: kv, now: time.Now}
}

func idemKey(scope, key string) string { return idemPrefix + scope + ":" + key }

// Lookup returns the cached response, or domain.ErrNotFound.
func (r *IdempotencyRepository) Lookup(ctx context.Context, scope, key string) (*CachedResponse, error) {
	e, err := r.kv.Get(ctx, idemKey(scope, key))
	if err != nil {
		return nil, err
	}
	return decodeCached(e)
}

// Reserve claims the key for a request about to run. It reports false when
// another request holds the key or already finished with it.
func (r *IdempotencyRepository) Reserve(ctx context.Context, scope, key string) (bool, error) {
	data, err := json.Marshal(CachedResponse{Pending: true, ReservedAt: r.now().UTC()})
	if err != nil {
		return false, fmt.Errorf("failed to encode reservation: %w", err)
	}
	k := idemKey(scope, key)

	_, err = r.kv.Put(ctx, k, data, 0)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return false, err
	}

	// Take over a reservation whose holder never finished.
	e, err := r.kv.Get(ctx, k)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	held, err := decodeCached(e)
	if err != nil {
		return false, err
	}
	if !held.Pending || r.now().Sub(held.ReservedAt) < ReservationTTL {
		return false, nil
	}
	_, err = r.kv.Put(ctx, k, data, e.Version)
	if errors.Is(err, domain.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}

// Save replaces the reservation with the final response.
func (r *IdempotencyRepository) Save(ctx context.Context, scope, key string, res CachedResponse) error {
	res.Pending = false
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode cached response: %w", err)
	}
	_, err = r.kv.Put(ctx, idemKey(scope, key), data, AnyVersion)
	return err
}

// Release drops the reservation so the request may be retried with the same key.
func (r *IdempotencyRepository) Release(ctx context.Context, scope, key string) error {
	err := r.kv.Delete(ctx, idemKey(scope, key))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func decodeCached(e Entry) (*CachedResponse, error) {
	var res CachedResponse
	if err := json.Unmarshal(e.Value, &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &res, nil
}
