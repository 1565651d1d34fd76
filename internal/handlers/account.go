package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/hoardrun1/hoardrun-sub005/internal/auth"
	"github.com/hoardrun1/hoardrun-sub005/internal/httputil"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

const serviceName = "api"

func HealthHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		out := HealthOut{OK: true, Service: serviceName, TS: time.Now().UTC(), DB: "up"}
		code := http.StatusOK
		if err := d.Store.Ping(ctx); err != nil {
			out.OK, out.DB = false, "down"
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, out)
	}
}

func MeHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		acc, err := d.Store.GetAccount(r.Context(), u.ID)
		if err != nil {
			httputil.WriteError(w, r, storeError(err, "account"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, MeOut{User: u, HasPIN: u.HasPIN(), Account: acc})
	}
}

// SetPINHandler sets the transaction PIN. Changing an existing PIN requires
// the current one.
func SetPINHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in PINIn
		if err := d.Validator.Bind(r, &in); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		u := currentUser(r)
		if u.HasPIN() && bcrypt.CompareHashAndPassword([]byte(u.PINHash), []byte(in.CurrentPIN)) != nil {
			httputil.WriteError(w, r, apperr.Wrap(apperr.CodeInvalidPIN, "current PIN is wrong", nil))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.PIN), bcrypt.DefaultCost)
		if err != nil {
			httputil.WriteError(w, r, apperr.Internal("hash pin", err))
			return
		}
		if err := d.Store.SetPIN(r.Context(), u.ID, string(hash)); err != nil {
			httputil.WriteError(w, r, storeError(err, "user"))
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true})
	}
}

func AccountHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := d.Store.GetAccount(r.Context(), currentUser(r).ID)
		if err != nil {
			httputil.WriteError(w, r, storeError(err, "account"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, acc)
	}
}

func ListTransactionsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := intParam(q.Get("limit"), "limit", 50)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		in := transactionQuery{Status: q.Get("status"), From: q.Get("from"), To: q.Get("to"), Limit: limit}
		if err := d.Validator.Struct(in); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		f := store.TransactionFilter{Status: in.Status, Limit: in.Limit}
		if in.From != "" {
			t, _ := time.Parse(time.RFC3339, in.From)
			f.From = &t
		}
		if in.To != "" {
			t, _ := time.Parse(time.RFC3339, in.To)
			f.To = &t
		}

		txs, err := d.Store.ListTransactions(r.Context(), currentUser(r).ID, f)
		if err != nil {
			httputil.WriteError(w, r, storeError(err, "transactions"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs, "count": len(txs)})
	}
}

func GetTransactionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := uuid.Parse(id); err != nil {
			httputil.WriteError(w, r, apperr.NotFound("transaction not found"))
			return
		}
		tx, err := d.Store.GetTransactionForUser(r.Context(), id, currentUser(r).ID)
		if err != nil {
			httputil.WriteError(w, r, storeError(err, "transaction"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, tx)
	}
}

// currentUser is only called behind the auth middleware.
func currentUser(r *http.Request) *store.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}

func storeError(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal("storage error", err)
}
