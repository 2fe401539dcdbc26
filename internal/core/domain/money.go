package domain

import (
	"github.com/Rhymond/go-money"
)

// DefaultCurrency is the house currency. Balances are whole units with no
// fractional part, so the minor unit and the display unit coincide.
const DefaultCurrency = "SFN"

func init() {
	money.AddCurrency(DefaultCurrency, "Ϡ", "$1", ".", ",", 0)
}

// Display formats an amount of minor units for humans, e.g. "Ϡ50,000".
// Unknown currency codes fall back to the house currency.
func Display(amount int64, currency string) string {
	if currency == "" || money.GetCurrency(currency) == nil {
		currency = DefaultCurrency
	}
	return money.New(amount, currency).Display()
}

// NewBalanceEvent builds the event pushed after a balance change.
func NewBalanceEvent(acc *Account, txID, currency string) Event {
	return Event{
		Type:      EventBalance,
		AccountID: acc.ID,
		Balance:   acc.Balance,
		Display:   Display(acc.Balance, currency),
		TxID:      txID,
	}
}
