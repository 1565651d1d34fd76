package handlers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hoardrun1/hoardrun-sub005/internal/mail"
	"github.com/hoardrun1/hoardrun-sub005/internal/market"
	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
	"github.com/hoardrun1/hoardrun-sub005/internal/payments"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
	"github.com/hoardrun1/hoardrun-sub005/internal/validate"
)

type Store interface {
	Ping(ctx context.Context) error
	GetAccount(ctx context.Context, userID string) (*store.Account, error)
	SetPIN(ctx context.Context, userID, hash string) error
	GetTransactionForUser(ctx context.Context, id, userID string) (*store.Transaction, error)
	ListTransactions(ctx context.Context, userID string, f store.TransactionFilter) ([]store.Transaction, error)
}

type Payments interface {
	Initiate(ctx context.Context, userID string, in payments.InitiateRequest) (*store.Transaction, error)
	HandleCallback(ctx context.Context, cb momo.Callback) (*store.Transaction, error)
	Refresh(ctx context.Context, userID, id string) (*store.Transaction, error)
}

type Market interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
	ExchangeRate(ctx context.Context, from, to string) (*market.ExchangeRate, error)
	Daily(ctx context.Context, symbol string, points int) ([]market.DailyPoint, error)
}

type Deps struct {
	Store         Store
	Payments      Payments
	Market        Market
	Contact       mail.ContactSubmitter
	Validator     *validate.Validator
	CallbackToken string
}

type PaymentIn struct {
	Amount   decimal.Decimal `json:"amount" validate:"required,gt=0,cents,maxamount"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
	Phone    string          `json:"phone" validate:"required,msisdn"`
	PIN      string          `json:"pin" validate:"required,pin"`
	Note     string          `json:"note" validate:"omitempty,max=140"`
}

type PINIn struct {
	PIN        string `json:"pin" validate:"required,pin"`
	ConfirmPIN string `json:"confirm_pin" validate:"required,eqfield=PIN"`
	CurrentPIN string `json:"current_pin" validate:"omitempty,pin"`
}

type transactionQuery struct {
	Status string `json:"status" validate:"omitempty,oneof=PENDING SUCCESSFUL FAILED"`
	From   string `json:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To     string `json:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit  int    `json:"limit" validate:"gte=1,lte=100"`
}

type symbolQuery struct {
	Symbol string `json:"symbol" validate:"required,symbol"`
	Points int    `json:"points" validate:"gte=1,lte=100"`
}

type fxQuery struct {
	From string `json:"from" validate:"required,alphanum,min=3,max=5"`
	To   string `json:"to" validate:"required,alphanum,min=3,max=5"`
}

type MeOut struct {
	User    *store.User    `json:"user"`
	HasPIN  bool           `json:"has_pin"`
	Account *store.Account `json:"account"`
}

type HealthOut struct {
	OK      bool      `json:"ok"`
	Service string    `json:"service"`
	TS      time.Time `json:"ts"`
	DB      string    `json:"db"`
}
