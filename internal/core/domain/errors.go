package domain

import (
	"errors"
)

// Kind is the stable, client-visible name of an error class.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindInactiveAccount    Kind = "INACTIVE_ACCOUNT"
	KindConflict           Kind = "CONFLICT"
	KindContention         Kind = "CONTENTION"
	KindStorage            Kind = "STORAGE_ERROR"
	KindInvalidAmount      Kind = "INVALID_AMOUNT"
	KindSelfTransfer       Kind = "SELF_TRANSFER"
	KindMessageTooLong     Kind = "MESSAGE_TOO_LONG"
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindBadRequest         Kind = "BAD_REQUEST"
	KindInternal           Kind = "INTERNAL"
)

var (
	// ErrNotFound indicates an unknown account id or key.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds indicates the sender balance is below the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInactiveAccount indicates a pending or declined account was used.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrConflict indicates a version-checked write lost to another writer.
	ErrConflict = errors.New("version conflict")
	// ErrContention indicates retries on ErrConflict were exhausted.
	ErrContention = errors.New("too much contention, try again")
	// ErrStorage wraps failures of the underlying key-value collaborator.
	ErrStorage = errors.New("storage error")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrSelfTransfer indicates sender and recipient are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to the same account")
	// ErrMessageTooLong indicates the transfer message exceeds MaxMessageBytes.
	ErrMessageTooLong = errors.New("message too long")
	// ErrAlreadyExists indicates signup with an id that is taken.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrInvalidCredentials indicates an unknown id or wrong secret at login.
	ErrInvalidCredentials = errors.New("username or password not found")
	// ErrInvalidTransition indicates a lifecycle change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid account state transition")
	// ErrBadRequest indicates malformed input such as an invalid account id.
	ErrBadRequest = errors.New("bad request")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrInactiveAccount, KindInactiveAccount},
	{ErrContention, KindContention},
	{ErrConflict, KindConflict},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrSelfTransfer, KindSelfTransfer},
	{ErrMessageTooLong, KindMessageTooLong},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrBadRequest, KindBadRequest},
	{ErrStorage, KindStorage},
}

// KindOf maps an error chain to its stable kind. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
