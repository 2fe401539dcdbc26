package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const tokenPrefix = "token:"

type apiKeyRecord struct {
	AccountID string    `json:"account_id"`
	Prefix    string    `json:"prefix"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenRepository maps hashed API keys to the account that owns them.
type TokenRepository struct {
	kv KV
}

func NewTokenRepository(kv KV) *TokenRepository {
	return &TokenRepository{kv: kv}
}

// SaveAPIKey stores the hashed key for the account.
func (r *TokenRepository) SaveAPIKey(ctx context.Context, accountID, keyHash, keyPrefix string) error {
	data, err := json.Marshal(apiKeyRecord{AccountID: accountID, Prefix: keyPrefix, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if _, err := r.kv.Put(ctx, tokenPrefix+keyHash, data, 0); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

// AccountForKey resolves a hashed key to its account id.
func (r *TokenRepository) AccountForKey(ctx context.Context, keyHash string) (string, error) {
	e, err := r.kv.Get(ctx, tokenPrefix+keyHash)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	var rec apiKeyRecord
	if err := json.Unmarshal(e.Value, &rec); err != nil {
		return "", fmt.Errorf("failed to decode api key: %w", err)
	}
	return rec.AccountID, nil
}
