package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// maxSecretBytes is the most bcrypt will look at.
const maxSecretBytes = 72

// ErrSecretTooLong is returned for secrets bcrypt would silently truncate.
var ErrSecretTooLong = fmt.Errorf("%w: secret must be at most %d bytes", domain.ErrBadRequest, maxSecretBytes)

// BcryptVerifier hashes account secrets. The hash is opaque to the rest of the service.
type BcryptVerifier struct {
	Cost int
}

func NewBcryptVerifier(cost int) *BcryptVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVerifier{Cost: cost}
}

func (v *BcryptVerifier) Hash(secret string) ([]byte, error) {
	if len(secret) > maxSecretBytes {
		return nil, ErrSecretTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), v.Cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt: %w", err)
	}
	return hash, nil
}

func (v *BcryptVerifier) Matches(secret string, hash []byte) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
