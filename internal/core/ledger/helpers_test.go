package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/storage"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/security"
)

// recordingNotifier keeps every event it was asked to deliver.
type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]domain.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]domain.Event)}
}

func (n *recordingNotifier) Notify(accountID string, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[accountID] = append(n.events[accountID], event)
}

func (n *recordingNotifier) For(accountID string) []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Event(nil), n.events[accountID]...)
}

// failingLedger rejects every append.
type failingLedger struct{}

func (failingLedger) Append(context.Context, domain.Transaction) error {
	return errors.New("disk full")
}

func (failingLedger) ListFor(context.Context, string) ([]domain.Transaction, error) {
	return nil, nil
}

type fixture struct {
	accounts  *storage.AccountRepository
	ledger    *storage.LedgerRepository
	notifier  *recordingNotifier
	recorder  *Recorder
	transfers *Coordinator
	allowance *AllowanceScheduler
	gate      *ApprovalGate
	clock     *mutablePeriod
}

type mutablePeriod struct {
	mu     sync.Mutex
	period string
}

func (p *mutablePeriod) CurrentPeriod() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period
}

func (p *mutablePeriod) Set(period string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.period = period
}

func testRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 64, BaseDelay: 50 * time.Microsecond, MaxDelay: 2 * time.Millisecond}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := storage.NewMemoryKV()
	f := &fixture{
		accounts: storage.NewAccountRepository(kv),
		ledger:   storage.NewLedgerRepository(kv),
		notifier: newRecordingNotifier(),
		clock:    &mutablePeriod{period: "2025-01"},
	}
	f.recorder = NewRecorder(f.ledger, f.notifier, RecorderConfig{Currency: domain.DefaultCurrency})
	f.transfers = NewCoordinator(f.accounts, f.recorder, testRetry(), nil)
	f.allowance = NewAllowanceScheduler(f.accounts, f.recorder, DefaultAllowance, testRetry(), nil)
	f.gate = NewApprovalGate(f.accounts, security.NewBcryptVerifier(bcrypt.MinCost), f.allowance, f.recorder, GateConfig{
		Clock: f.clock,
		Retry: testRetry(),
	})
	return f
}

// seed stores an account directly, bypassing the approval flow.
func (f *fixture) seed(t *testing.T, id string, status domain.Status, balance int64) {
	t.Helper()
	require.NoError(t, f.accounts.Create(context.Background(), &domain.Account{
		ID:      id,
		Status:  status,
		Balance: balance,
	}))
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	acc, err := f.accounts.Get(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func (f *fixture) history(t *testing.T, id string) []domain.Transaction {
	t.Helper()
	txs, err := f.ledger.ListFor(context.Background(), id)
	require.NoError(t, err)
	return txs
}
