package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

type stubRequester struct {
	calls []string
	err   error
}

func (r *stubRequester) RequestApproval(_ context.Context, acc *domain.Account) error {
	r.calls = append(r.calls, acc.ID)
	return r.err
}

func signup(t *testing.T, f *fixture, id string) *domain.Account {
	t.Helper()
	acc, err := f.gate.Signup(context.Background(), SignupRequest{
		ID:      id,
		Secret:  "s3cret",
		Profile: domain.Profile{Name: "Ada", Surname: "Lovelace", Cell: "0821234567"},
	})
	require.NoError(t, err)
	return acc
}

func TestSignup_CreatesPending(t *testing.T) {
	f := newFixture(t)
	requester := &stubRequester{}
	f.gate.requester = requester

	acc := signup(t, f, "ada")
	assert.Equal(t, domain.StatusPending, acc.Status)
	assert.Equal(t, int64(0), acc.Balance)
	assert.NotEqual(t, []byte("s3cret"), acc.CredentialHash)
	assert.Equal(t, []string{"ada"}, requester.calls)

	stored, err := f.accounts.Get(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", stored.Profile.Surname)

	_, err = f.gate.Signup(context.Background(), SignupRequest{ID: "ada", Secret: "other"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestSignup_RequesterFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.gate.requester = &stubRequester{err: errors.New("queue down")}

	acc := signup(t, f, "ada")
	assert.Equal(t, domain.StatusPending, acc.Status)
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"", "a:b", "has space", domain.SystemSender, strings.Repeat("x", maxIDBytes+1)} {
		_, err := f.gate.Signup(context.Background(), SignupRequest{ID: id, Secret: "x"})
		assert.ErrorIs(t, err, domain.ErrBadRequest, "id %q", id)
	}

	_, err := f.gate.Signup(context.Background(), SignupRequest{ID: "ok"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestApprove_ActivatesAndCredits(t *testing.T) {
	f := newFixture(t)
	signup(t, f, "ada")

	acc, err := f.gate.Approve(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, acc.Status)
	assert.Equal(t, DefaultAllowance, acc.Balance)
	assert.Equal(t, "2025-01", acc.LastAllowancePeriod)

	txs := f.history(t, "ada")
	require.Len(t, txs, 1)
	assert.Equal(t, domain.SystemSender, txs[0].From)
	assert.Equal(t, "Welcome allowance 2025-01", txs[0].Message)
	assert.Len(t, f.notifier.For("ada"), 1)

	// The welcome credit covers the current period.
	outcome, _, err := f.allowance.CreditIfDue(context.Background(), "ada", f.clock.CurrentPeriod())
	require.NoError(t, err)
	assert.Equal(t, AlreadyCredited, outcome)

	f.clock.Set("2025-02")
	outcome, _, err = f.allowance.CreditIfDue(context.Background(), "ada", f.clock.CurrentPeriod())
	require.NoError(t, err)
	assert.Equal(t, Credited, outcome)
}

func TestApprove_Idempotent(t *testing.T) {
	f := newFixture(t)
	signup(t, f, "ada")

	_, err := f.gate.Approve(context.Background(), "ada")
	require.NoError(t, err)
	acc, err := f.gate.Approve(context.Background(), "ada")
	require.NoError(t, err)

	assert.Equal(t, DefaultAllowance, acc.Balance)
	assert.Len(t, f.history(t, "ada"), 1)
}

func TestApprove_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Approve(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDecline_RemovesPending(t *testing.T) {
	f := newFixture(t)
	signup(t, f, "ada")

	require.NoError(t, f.gate.Decline(context.Background(), "ada"))
	_, err := f.accounts.Get(context.Background(), "ada")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Declining again, or declining an unknown id, is a no-op.
	assert.NoError(t, f.gate.Decline(context.Background(), "ada"))
	assert.NoError(t, f.gate.Decline(context.Background(), "ghost"))

	// The id is free again.
	signup(t, f, "ada")
}

func TestDecline_ActiveAccountRejected(t *testing.T) {
	f := newFixture(t)
	signup(t, f, "ada")
	_, err := f.gate.Approve(context.Background(), "ada")
	require.NoError(t, err)

	err = f.gate.Decline(context.Background(), "ada")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, DefaultAllowance, f.balance(t, "ada"))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	signup(t, f, "ada")
	ctx := context.Background()

	_, err := f.gate.Authenticate(ctx, "ada", "s3cret")
	assert.ErrorIs(t, err, domain.ErrInactiveAccount)

	_, err = f.gate.Approve(ctx, "ada")
	require.NoError(t, err)

	acc, err := f.gate.Authenticate(ctx, "ada", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ada", acc.ID)

	_, err = f.gate.Authenticate(ctx, "ada", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.gate.Authenticate(ctx, "ghost", "s3cret")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestPending(t *testing.T) {
	f := newFixture(t)
	signup(t, f, "ada")
	signup(t, f, "bob")
	_, err := f.gate.Approve(context.Background(), "bob")
	require.NoError(t, err)

	pending, err := f.gate.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ada", pending[0].ID)
}

func TestApprove_Overflow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "rich", domain.StatusPending, math.MaxInt64)

	_, err := f.gate.Approve(context.Background(), "rich")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	acc, err := f.accounts.Get(context.Background(), "rich")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, acc.Status)
	assert.Empty(t, f.history(t, "rich"))
}
