package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{ErrNotFound, KindNotFound},
		{fmt.Errorf("account %q: %w", "x", ErrNotFound), KindNotFound},
		{fmt.Errorf("transfer: %w", ErrContention), KindContention},
		{ErrConflict, KindConflict},
		{fmt.Errorf("memory put: %w: %v", ErrStorage, errors.New("boom")), KindStorage},
		{errors.New("something else"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "Ϡ50,000", Display(50000, DefaultCurrency))
	assert.Equal(t, "Ϡ0", Display(0, ""))
	assert.Equal(t, "Ϡ7", Display(7, "NOPE"))
}

func TestNewBalanceEvent(t *testing.T) {
	acc := &Account{ID: "ada", Balance: 1200}
	ev := NewBalanceEvent(acc, "tx-1", DefaultCurrency)
	assert.Equal(t, EventBalance, ev.Type)
	assert.Equal(t, "ada", ev.AccountID)
	assert.Equal(t, int64(1200), ev.Balance)
	assert.Equal(t, "Ϡ1,200", ev.Display)
	assert.Equal(t, "tx-1", ev.TxID)
}

func TestAccountHelpers(t *testing.T) {
	var nilAcc *Account
	assert.False(t, nilAcc.IsActive())
	assert.True(t, (&Account{Status: StatusActive}).IsActive())
	assert.False(t, (&Account{Status: StatusPending}).IsActive())
	assert.True(t, Transaction{From: SystemSender}.IsAllowance())
}
