package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const userColumns = `id, provider, subject, email, phone, pin_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u   User
		pin sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.Phone, &pin, &u.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	u.PINHash = pin.String
	return &u, nil
}

// UpsertUser returns the user for (provider, subject), creating it and its
// zero-balance account on first sight. Email is refreshed on every call.
func (s *Store) UpsertUser(ctx context.Context, provider, subject, email string) (*User, error) {
	var user *User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`INSERT INTO users (id, provider, subject, email) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (provider, subject) DO UPDATE SET email = EXCLUDED.email
			 RETURNING `+userColumns,
			uuid.NewString(), provider, subject, email)
		u, err := scanUser(row)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, user_id, currency, balance) VALUES ($1, $2, $3, 0)
			 ON CONFLICT (user_id) DO NOTHING`,
			uuid.NewString(), u.ID, s.defaultCurrency); err != nil {
			return fmt.Errorf("open account: %w", mapErr(err))
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user_id": user.ID, "provider": provider}).Debug("[STORE] User upserted")
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) SetPIN(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET pin_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const accountColumns = `id, user_id, currency, balance, updated_at`

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Currency, &a.Balance, &a.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	return scanAccount(row)
}

// CreditAccount adds amount to the user's balance. Used by the seed tool.
func (s *Store) CreditAccount(ctx context.Context, userID string, amount decimal.Decimal) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = now() WHERE user_id = $1 RETURNING `+accountColumns,
		userID, amount)
	return scanAccount(row)
}
