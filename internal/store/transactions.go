package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	transactionColumns = `id, user_id, kind, provider, provider_ref, amount, currency, phone, note,
		status, reason, financial_tx_id, created_at, updated_at`

	defaultListLimit = 50
	maxListLimit     = 100
)

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Kind, &t.Provider, &t.ProviderRef, &t.Amount, &t.Currency,
		&t.Phone, &t.Note, &t.Status, &t.Reason, &t.FinancialTxID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

// CreateTransaction stores t as PENDING. A reused provider reference
// yields ErrConflict.
func (s *Store) CreateTransaction(ctx context.Context, t *Transaction) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO transactions (id, user_id, kind, provider, provider_ref, amount, currency, phone, note, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+transactionColumns,
		t.ID, t.UserID, t.Kind, t.Provider, t.ProviderRef, t.Amount, t.Currency, t.Phone, t.Note, StatusPending)
	created, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return created, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (s *Store) GetTransactionByProviderRef(ctx context.Context, ref string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE provider_ref = $1`, ref)
	return scanTransaction(row)
}

// GetTransactionForUser hides other users' transactions behind ErrNotFound.
func (s *Store) GetTransactionForUser(ctx context.Context, id, userID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	return scanTransaction(row)
}

func (s *Store) ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]Transaction, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		transactionColumns, strings.Join(where, " AND "), len(args))
	return s.queryTransactions(ctx, query, args...)
}

// ListStalePending returns PENDING transactions created before olderThan,
// oldest first.
func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`,
		StatusPending, olderThan, limit)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SettleTransaction moves a PENDING transaction to its final status in one
// database transaction. A successful outcome decrements the owner's balance;
// when the balance no longer covers the amount the transaction fails with
// ReasonInsufficientFunds instead. Settling a final transaction is a no-op
// and reports changed=false.
func (s *Store) SettleTransaction(ctx context.Context, id string, out Outcome) (settled *Transaction, changed bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanTransaction(tx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if current.Final() {
			settled = current
			return nil
		}

		status, reason := out.Status, out.Reason
		if status == StatusSuccessful {
			res, err := tx.ExecContext(ctx,
				`UPDATE accounts SET balance = balance - $2, updated_at = now()
				 WHERE user_id = $1 AND balance >= $2`,
				current.UserID, current.Amount)
			if err != nil {
				return fmt.Errorf("debit account: %w", mapErr(err))
			}
			if n, _ := res.RowsAffected(); n == 0 {
				status, reason = StatusFailed, ReasonInsufficientFunds
			}
		}

		updated, err := scanTransaction(tx.QueryRowContext(ctx,
			`UPDATE transactions SET status = $2, reason = $3, financial_tx_id = $4, updated_at = now()
			 WHERE id = $1 RETURNING `+transactionColumns,
			id, status, reason, out.FinancialTxID))
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		settled, changed = updated, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		log.WithFields(log.Fields{
			"transaction_id": settled.ID,
			"status":         settled.Status,
			"reason":         settled.Reason,
		}).Info("[STORE] Transaction settled")
	}
	return settled, changed, nil
}
