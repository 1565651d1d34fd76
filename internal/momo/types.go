package momo

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Provider statuses reported by the request-to-pay status endpoint.
const (
	StatusPending    = "PENDING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
	StatusRejected   = "REJECTED"
	StatusTimeout    = "TIMEOUT"
	StatusExpired    = "EXPIRED"
)

type Party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// PaymentRequest is a collection request addressed to a payer's wallet.
// ReferenceID doubles as the provider idempotency key.
type PaymentRequest struct {
	ReferenceID  string
	ExternalID   string
	Amount       decimal.Decimal
	Currency     string
	Phone        string
	PayerMessage string
	PayeeNote    string
}

type requestToPayBody struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        Party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

type PaymentStatus struct {
	Amount                 string      `json:"amount"`
	Currency               string      `json:"currency"`
	FinancialTransactionID string      `json:"financialTransactionId"`
	ExternalID             string      `json:"externalId"`
	Payer                  Party       `json:"payer"`
	Status                 string      `json:"status"`
	Reason                 ErrorReason `json:"reason"`
}

// ErrorReason explains a failed request to pay. MOMO sends an object, some
// sandbox builds a bare code string; both decode.
type ErrorReason struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (r *ErrorReason) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		return json.Unmarshal(b, &r.Code)
	}
	type plain ErrorReason
	return json.Unmarshal(b, (*plain)(r))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Callback is the body MOMO posts to the callback URL. Only the identifiers
// are used; the status is re-read from the provider.
type Callback struct {
	ReferenceID            string `json:"referenceId"`
	ExternalID             string `json:"externalId"`
	FinancialTransactionID string `json:"financialTransactionId"`
	Status                 string `json:"status"`
	Reason                 any    `json:"reason,omitempty"`
}
