package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyPrefix marks session keys issued at login.
const KeyPrefix = "sl_live_"

const keyBytes = 32

// GenerateAPIKey issues a random session key for a successful login.
//
// Returns:
//   - key: handed to the client once (e.g. "sl_live_9f2c...")
//   - hash: what the token store keeps, see HashAPIKey
func GenerateAPIKey() (key string, hash string, err error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	key = KeyPrefix + hex.EncodeToString(raw)
	return key, HashAPIKey(key), nil
}

// HashAPIKey returns the hex SHA256 of the key. Lookups go by this value, so
// the plain key is never stored or compared.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
