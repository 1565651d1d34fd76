package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
	"github.com/hoardrun1/hoardrun-sub005/internal/queue"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
	m "github.com/hoardrun1/hoardrun-sub005/pkg/metrics"
)

const (
	ReasonProviderRejected = "provider_rejected"
	ReasonProviderNotFound = "provider_not_found"
	ReasonAmountMismatch   = "amount_mismatch"

	CodeCurrencyMismatch = "currency_mismatch"
)

type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetAccount(ctx context.Context, userID string) (*store.Account, error)
	CreateTransaction(ctx context.Context, t *store.Transaction) (*store.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*store.Transaction, error)
	GetTransactionByProviderRef(ctx context.Context, ref string) (*store.Transaction, error)
	GetTransactionForUser(ctx context.Context, id, userID string) (*store.Transaction, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]store.Transaction, error)
	SettleTransaction(ctx context.Context, id string, out store.Outcome) (*store.Transaction, bool, error)
}

type Provider interface {
	RequestToPay(ctx context.Context, pr momo.PaymentRequest) error
	Status(ctx context.Context, referenceID string) (*momo.PaymentStatus, error)
}

type InitiateRequest struct {
	Amount   decimal.Decimal
	Currency string
	Phone    string
	PIN      string
	Note     string
}

type Service struct {
	store    Store
	provider Provider
	events   queue.Publisher
	now      func() time.Time
}

func NewService(s Store, p Provider, events queue.Publisher) *Service {
	if events == nil {
		events = queue.Discard{}
	}
	return &Service{store: s, provider: p, events: events, now: time.Now}
}

// Initiate checks the PIN and available balance, records a PENDING
// transaction and asks MOMO to collect it. A provider rejection fails the
// transaction immediately; any other provider error leaves it PENDING for
// the reconciler, since the request may have reached MOMO.
func (s *Service) Initiate(ctx context.Context, userID string, in InitiateRequest) (*store.Transaction, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if !user.HasPIN() {
		return nil, apperr.Unprocessable(apperr.CodePINNotSet, "set a transaction PIN first")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PINHash), []byte(in.PIN)) != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidPIN, "invalid PIN", nil)
	}

	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "account")
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = acc.Currency
	}
	if currency != acc.Currency {
		return nil, apperr.Unprocessable(CodeCurrencyMismatch, "payment currency must match account currency "+acc.Currency)
	}
	if acc.Balance.LessThan(in.Amount) {
		return nil, apperr.Wrap(apperr.CodeInsufficientFund, "balance does not cover the amount", store.ErrInsufficientFunds)
	}

	tx, err := s.store.CreateTransaction(ctx, &store.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        store.KindMomoPayment,
		Provider:    store.ProviderMomo,
		ProviderRef: uuid.NewString(),
		Amount:      in.Amount,
		Currency:    currency,
		Phone:       momo.NormalizeMSISDN(in.Phone),
		Note:        in.Note,
	})
	if err != nil {
		return nil, storeErr(err, "transaction")
	}
	logger := log.WithFields(log.Fields{"transaction_id": tx.ID, "user_id": userID})
	s.publish(ctx, queue.EventCreated, tx)

	err = s.provider.RequestToPay(ctx, momo.PaymentRequest{
		ReferenceID: tx.ProviderRef,
		ExternalID:  tx.ID,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Phone:       tx.Phone,
		PayeeNote:   tx.Note,
	})
	switch {
	case err == nil:
		logger.Info("[PAYMENTS] Payment initiated")
		return tx, nil
	case errors.Is(err, momo.ErrRejected):
		logger.WithError(err).Warn("[PAYMENTS] Provider rejected payment")
		return s.settle(ctx, tx, store.Outcome{Status: store.StatusFailed, Reason: ReasonProviderRejected})
	default:
		logger.WithError(err).Warn("[PAYMENTS] Provider unreachable, leaving transaction pending")
		return tx, nil
	}
}

// HandleCallback resolves the transaction named by a MOMO callback and
// settles it from the provider's status endpoint. The callback's own status
// field is ignored.
func (s *Service) HandleCallback(ctx context.Context, cb momo.Callback) (*store.Transaction, error) {
	tx, err := s.resolve(ctx, cb)
	if err != nil {
		m.IncCallback("not_found")
		return nil, err
	}
	before := tx.Status
	settled, err := s.Sync(ctx, tx)
	if err != nil {
		m.IncCallback("error")
		return nil, err
	}
	if settled.Status != before {
		m.IncCallback(strings.ToLower(settled.Status))
	} else {
		m.IncCallback("noop")
	}
	return settled, nil
}

func (s *Service) resolve(ctx context.Context, cb momo.Callback) (*store.Transaction, error) {
	if _, err := uuid.Parse(cb.ExternalID); err == nil {
		tx, err := s.store.GetTransaction(ctx, cb.ExternalID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storeErr(err, "transaction")
		}
	}
	if cb.ReferenceID != "" {
		tx, err := s.store.GetTransactionByProviderRef(ctx, cb.ReferenceID)
		if err == nil {
			return tx, nil
		}
		return nil, storeErr(err, "transaction")
	}
	return nil, apperr.NotFound("transaction not found")
}

// Refresh re-reads the provider status of one of the user's transactions.
func (s *Service) Refresh(ctx context.Context, userID, id string) (*store.Transaction, error) {
	tx, err := s.store.GetTransactionForUser(ctx, id, userID)
	if err != nil {
		return nil, storeErr(err, "transaction")
	}
	return s.Sync(ctx, tx)
}

// Reconcile syncs up to limit transactions that have been PENDING for longer
// than staleAfter and returns how many left PENDING.
func (s *Service) Reconcile(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	stale, err := s.store.ListStalePending(ctx, s.now().Add(-staleAfter), limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for i := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		tx, err := s.Sync(ctx, &stale[i])
		if err != nil {
			log.WithError(err).WithField("transaction_id", stale[i].ID).Warn("[PAYMENTS] Reconcile failed")
			continue
		}
		if tx.Final() {
			settled++
		}
	}
	return settled, nil
}

// Sync asks MOMO for the current status of a PENDING transaction and settles
// it when the provider reports a final state.
func (s *Service) Sync(ctx context.Context, tx *store.Transaction) (*store.Transaction, error) {
	if tx.Final() {
		return tx, nil
	}

	ps, err := s.provider.Status(ctx, tx.ProviderRef)
	if errors.Is(err, momo.ErrNotFound) {
		return s.settle(ctx, tx, store.Outcome{Status: store.StatusFailed, Reason: ReasonProviderNotFound})
	}
	if err != nil {
		return nil, apperr.Upstream("payment provider unavailable", err)
	}

	out, final := outcomeFor(tx, ps)
	if !final {
		return tx, nil
	}
	return s.settle(ctx, tx, out)
}

func outcomeFor(tx *store.Transaction, ps *momo.PaymentStatus) (store.Outcome, bool) {
	switch ps.Status {
	case momo.StatusSuccessful:
		if amt, err := decimal.NewFromString(ps.Amount); ps.Amount != "" && (err != nil || !amt.Equal(tx.Amount)) {
			return store.Outcome{Status: store.StatusFailed, Reason: ReasonAmountMismatch, FinancialTxID: ps.FinancialTransactionID}, true
		}
		if ps.Currency != "" && !strings.EqualFold(ps.Currency, tx.Currency) {
			return store.Outcome{Status: store.StatusFailed, Reason: ReasonAmountMismatch, FinancialTxID: ps.FinancialTransactionID}, true
		}
		return store.Outcome{Status: store.StatusSuccessful, FinancialTxID: ps.FinancialTransactionID}, true
	case momo.StatusFailed, momo.StatusRejected, momo.StatusTimeout, momo.StatusExpired:
		reason := strings.ToLower(ps.Reason.Code)
		if reason == "" {
			reason = strings.ToLower(ps.Status)
		}
		return store.Outcome{Status: store.StatusFailed, Reason: reason, FinancialTxID: ps.FinancialTransactionID}, true
	}
	return store.Outcome{}, false
}

func (s *Service) settle(ctx context.Context, tx *store.Transaction, out store.Outcome) (*store.Transaction, error) {
	settled, changed, err := s.store.SettleTransaction(ctx, tx.ID, out)
	if err != nil {
		return nil, storeErr(err, "transaction")
	}
	if changed {
		s.publish(ctx, queue.EventSettled, settled)
	}
	return settled, nil
}

// publish is best effort; the database is the source of truth.
func (s *Service) publish(ctx context.Context, typ string, tx *store.Transaction) {
	if err := s.events.Publish(ctx, queue.EventFor(typ, tx)); err != nil {
		log.WithError(err).WithField("transaction_id", tx.ID).Warn("[PAYMENTS] Event not published")
	}
}

func storeErr(err error, what string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(what + " not found")
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.CodeConflict, what+" already exists", err)
	}
	return apperr.Internal("storage error", err)
}
