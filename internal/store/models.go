package store

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending    = "PENDING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"

	KindMomoPayment = "MOMO_PAYMENT"
	ProviderMomo    = "momo"

	ReasonInsufficientFunds = "insufficient_funds"
)

type User struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"-"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	PINHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) HasPIN() bool { return u.PINHash != "" }

type Account struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Kind          string          `json:"kind"`
	Provider      string          `json:"provider"`
	ProviderRef   string          `json:"provider_ref"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Phone         string          `json:"phone,omitempty"`
	Note          string          `json:"note,omitempty"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	FinancialTxID string          `json:"financial_tx_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (t *Transaction) Final() bool { return t.Status != StatusPending }

// Outcome is what the provider reported for a pending transaction.
type Outcome struct {
	Status        string
	Reason        string
	FinancialTxID string
}

type TransactionFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
}
