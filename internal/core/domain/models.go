package domain

import (
	"time"
)

// SystemSender is the reserved sender id used for allowance credits.
// It never names a real account.
const SystemSender = "system"

// MaxMessageBytes bounds the free-text message attached to a transfer.
const MaxMessageBytes = 280

// Status is the lifecycle state of an account.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusDeclined Status = "DECLINED"
)

// Profile holds the signup details collected from the user.
// The core stores it but never interprets it.
type Profile struct {
	Name    string `json:"name,omitempty"`
	Surname string `json:"surname,omitempty"`
	Cell    string `json:"cell,omitempty"`
}

// Account represents a user's wallet.
type Account struct {
	ID                  string    `json:"id"`
	CredentialHash      []byte    `json:"credential_hash"`
	Status              Status    `json:"status"`
	Balance             int64     `json:"balance"` // Stored in minor units
	LastAllowancePeriod string    `json:"last_allowance_period,omitempty"`
	Profile             Profile   `json:"profile"`
	CreatedAt           time.Time `json:"created_at"`
	// LastTxAt is the timestamp of the newest ledger entry touching the
	// account. It is written by the same commit that moved the balance.
	LastTxAt time.Time `json:"last_tx_at"`

	// Version is the optimistic concurrency token. It mirrors the version of
	// the stored record and is never serialized into the record itself.
	Version int64 `json:"-"`
}

// IsActive reports whether the account may transfer or receive allowances.
func (a *Account) IsActive() bool {
	return a != nil && a.Status == StatusActive
}

// Transaction represents a committed movement of value. Immutable once written.
type Transaction struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    int64     `json:"amount"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsAllowance reports whether the transaction is a system credit.
func (t Transaction) IsAllowance() bool {
	return t.From == SystemSender
}

// EventType names the kind of event pushed to live sessions.
type EventType string

const (
	EventBalance EventType = "balance"
)

// Event is pushed to live sessions when an account changes. Consumers must
// re-query the balance; the payload is informational only.
type Event struct {
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id"`
	Balance   int64     `json:"balance"`
	Display   string    `json:"display"`
	TxID      string    `json:"tx_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
