package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/httputil"
	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
	"github.com/hoardrun1/hoardrun-sub005/internal/payments"
	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
	m "github.com/hoardrun1/hoardrun-sub005/pkg/metrics"
)

func PaymentsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { m.ObserveDuration(serviceName, "MOMO_INITIATE", time.Since(start).Seconds()) }()

		var in PaymentIn
		if err := d.Validator.Bind(r, &in); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		tx, err := d.Payments.Initiate(r.Context(), currentUser(r).ID, payments.InitiateRequest{
			Amount:   in.Amount,
			Currency: in.Currency,
			Phone:    in.Phone,
			PIN:      in.PIN,
			Note:     in.Note,
		})
		if err != nil {
			m.IncRequest(serviceName, "FAILED", "MOMO_INITIATE")
			httputil.WriteError(w, r, err)
			return
		}
		m.IncRequest(serviceName, "SUCCESS", "MOMO_INITIATE")
		httputil.WriteJSON(w, http.StatusCreated, tx)
	}
}

func RefreshPaymentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := uuid.Parse(id); err != nil {
			httputil.WriteError(w, r, apperr.NotFound("transaction not found"))
			return
		}
		tx, err := d.Payments.Refresh(r.Context(), currentUser(r).ID, id)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, tx)
	}
}

// CallbackHandler receives MOMO callbacks. MOMO does not sign callbacks, so
// the registered callback URL carries a shared token in its query string.
func CallbackHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if d.CallbackToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(d.CallbackToken)) != 1 {
			m.IncCallback("forbidden")
			log.WithField("remote", r.RemoteAddr).Warn("[API] MOMO callback with bad token")
			httputil.WriteError(w, r, apperr.Forbidden("invalid callback token"))
			return
		}

		var cb momo.Callback
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&cb); err != nil {
			m.IncCallback("bad_json")
			httputil.WriteError(w, r, apperr.BadRequest(apperr.CodeBadJSON, "malformed callback body"))
			return
		}
		if cb.ExternalID == "" && cb.ReferenceID == "" {
			if ref := r.Header.Get("X-Reference-Id"); ref != "" {
				cb.ReferenceID = ref
			}
		}

		tx, err := d.Payments.HandleCallback(r.Context(), cb)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		log.WithFields(log.Fields{"transaction_id": tx.ID, "status": tx.Status}).Info("[API] MOMO callback processed")
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "status": tx.Status})
	}
}
