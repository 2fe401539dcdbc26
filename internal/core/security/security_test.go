package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.Len(t, key, len(KeyPrefix)+64)
	assert.Equal(t, HashAPIKey(key), hash)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, HashAPIKey(key+"x"), hash)

	other, _, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestBcryptVerifier(t *testing.T) {
	v := NewBcryptVerifier(bcrypt.MinCost)

	hash, err := v.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, v.Matches("correct horse", hash))
	assert.False(t, v.Matches("battery staple", hash))
	assert.False(t, v.Matches("correct horse", nil))

	_, err = v.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrSecretTooLong)
}

func TestNewBcryptVerifier_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptVerifier(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptVerifier(99).Cost)
}
